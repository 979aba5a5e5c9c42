// obdtap is a reference subscriber: it connects to the gateway's broadcast
// endpoint, prints a summary line per frame and reconnects with capped
// exponential backoff when the connection drops. Useful as a smoke test and
// as the model consumer for the reconnection contract.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	backoffBase = 1 * time.Second
	backoffCap  = 16 * time.Second
)

func main() {
	addr := flag.String("addr", "ws://localhost:8765/ws", "gateway broadcast endpoint")
	token := flag.String("token", "", "JWT or API token when the gateway requires auth")
	maxAttempts := flag.Int("max-attempts", 0, "give up after this many consecutive failed connects (0 = retry forever)")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	url := *addr
	if *token != "" {
		url += "?token=" + *token
	}

	backoff := backoffBase
	failures := 0

	for {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			failures++
			if *maxAttempts > 0 && failures >= *maxAttempts {
				log.Fatalf("giving up after %d failed connection attempts: %v", failures, err)
			}
			log.WithError(err).Warnf("connect failed, retrying in %s", backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > backoffCap {
				backoff = backoffCap
			}
			continue
		}

		log.Infof("connected to %s", *addr)
		failures = 0
		backoff = backoffBase

		if err := tap(conn); err != nil {
			log.WithError(err).Warn("connection lost")
		}
		conn.Close()
	}
}

// tap prints frames until the connection errors. Frames with a non-OK
// status are expected during adapter outages and are reported, not fatal.
func tap(conn *websocket.Conn) error {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var frame map[string]any
		if err := json.Unmarshal(message, &frame); err != nil {
			fmt.Printf("unparseable message: %s\n", message)
			continue
		}

		if t, _ := frame["type"].(string); t == "alert" {
			fmt.Printf("ALERT  %v %v\n", frame["code"], frame["message"])
			continue
		}

		status, _ := frame["status"].(string)
		fmt.Printf("status=%-16s rpm=%-8v speed=%-8v coolant=%-6v dtc_count=%v\n",
			status, frame["rpm"], frame["speed"], frame["coolant_temp"], frame["dtc_count"])
	}
}
