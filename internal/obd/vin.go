package obd

import (
	"encoding/hex"
	"strings"
)

// VehicleInfo is what a VIN reveals without an external lookup: the
// manufacturer from the WMI prefix, the model year from the 10th character
// and the country of assembly from the first.
type VehicleInfo struct {
	Make    string
	Year    int
	Country string
	RawVIN  string
}

// ParseVIN extracts the 17-character VIN from a mode 09 PID 02 reply. The
// reply is ISO-TP segmented ("49 02 01" then ASCII bytes, spread over
// several lines on CAN).
func ParseVIN(reply string) (string, bool) {
	var h strings.Builder
	for _, line := range strings.Split(reply, "\n") {
		h.WriteString(hexOnly(line))
	}
	joined := h.String()
	i := strings.Index(joined, "4902")
	if i < 0 {
		return "", false
	}
	payload, err := hex.DecodeString(joined[i+4:])
	if err != nil || len(payload) == 0 {
		return "", false
	}

	var vin strings.Builder
	for _, b := range payload {
		if b >= '0' && b <= '9' || b >= 'A' && b <= 'Z' {
			vin.WriteByte(b)
		}
	}
	s := vin.String()
	if len(s) < 17 {
		return "", false
	}
	return s[len(s)-17:], true
}

// DecodeVIN derives make, model year and country from a VIN. Unknown fields
// stay zero-valued; a short VIN yields only the raw string.
func DecodeVIN(vin string) VehicleInfo {
	info := VehicleInfo{RawVIN: vin}
	if len(vin) != 17 {
		return info
	}

	// Longest WMI prefix wins.
	for _, n := range []int{3, 2} {
		if make, ok := wmiCodes[vin[:n]]; ok {
			info.Make = make
			break
		}
	}
	if year, ok := vinYearCodes[vin[9]]; ok {
		info.Year = year
	}
	if country, ok := vinCountryCodes[vin[0]]; ok {
		info.Country = country
	}
	return info
}

// World Manufacturer Identifier prefixes (first 2-3 VIN characters).
var wmiCodes = map[string]string{
	"1G":  "General Motors (US)",
	"1G1": "Chevrolet",
	"1GC": "Chevrolet Truck",
	"1GD": "GMC Truck",
	"1G4": "Buick",
	"1G6": "Cadillac",
	"1H":  "Honda (US)",
	"1HD": "Harley-Davidson",
	"1J":  "Jeep",
	"1L":  "Lincoln",
	"1N":  "Nissan (US)",
	"1V":  "Volkswagen (US)",
	"2G":  "General Motors (Canada)",
	"2H":  "Honda (Canada)",
	"2T":  "Toyota (Canada)",
	"3F":  "Ford (Mexico)",
	"3N":  "Nissan (Mexico)",
	"3V":  "Volkswagen (Mexico)",
	"4S":  "Subaru (USA)",
	"4T":  "Toyota (USA)",
	"5F":  "Honda (US)",
	"5N":  "Hyundai (Korea)",
	"5Y":  "Mazda (US)",
	"JA":  "Isuzu",
	"JF":  "Fuji Heavy Industries (Subaru)",
	"JH":  "Honda (Japan)",
	"JM":  "Mazda (Japan)",
	"JN":  "Nissan (Japan)",
	"JS":  "Suzuki (Japan)",
	"JT":  "Toyota (Japan)",
	"KL":  "Daewoo/GM Korea",
	"KM":  "Hyundai",
	"KN":  "Kia",
	"SAL": "Land Rover",
	"SAJ": "Jaguar",
	"SCC": "Lotus",
	"SCF": "Aston Martin",
	"SHS": "Honda (UK)",
	"TMB": "Skoda",
	"TRU": "Audi",
	"VF1": "Renault",
	"VF3": "Peugeot",
	"VF7": "Citroën",
	"W0L": "Opel/Vauxhall",
	"WA1": "Audi SUV",
	"WAU": "Audi",
	"WBA": "BMW",
	"WBS": "BMW M",
	"WDB": "Mercedes-Benz",
	"WDC": "Mercedes-Benz SUV",
	"WDD": "Mercedes-Benz",
	"WMW": "Mini",
	"WP0": "Porsche",
	"WP1": "Porsche SUV",
	"WVG": "Volkswagen SUV",
	"WVW": "Volkswagen",
	"XTA": "Lada/AvtoVAZ",
	"YS3": "Saab",
	"YV1": "Volvo",
	"YV4": "Volvo SUV",
	"ZAR": "Alfa Romeo",
	"ZFA": "Fiat",
	"ZFF": "Ferrari",
}

// Model year encoding of VIN position 10. The code alphabet repeats every 30
// years; this table covers the 2010-2039 window, which is the population an
// OBD-II live-data adapter realistically meets.
var vinYearCodes = map[byte]int{
	'A': 2010, 'B': 2011, 'C': 2012, 'D': 2013, 'E': 2014, 'F': 2015,
	'G': 2016, 'H': 2017, 'J': 2018, 'K': 2019, 'L': 2020, 'M': 2021,
	'N': 2022, 'P': 2023, 'R': 2024, 'S': 2025, 'T': 2026, 'V': 2027,
	'W': 2028, 'X': 2029, 'Y': 2030,
	'1': 2031, '2': 2032, '3': 2033, '4': 2034, '5': 2035, '6': 2036,
	'7': 2037, '8': 2038, '9': 2039,
}

var vinCountryCodes = map[byte]string{
	'1': "United States",
	'2': "Canada",
	'3': "Mexico",
	'4': "United States",
	'5': "United States",
	'J': "Japan",
	'K': "Korea",
	'L': "China",
	'S': "United Kingdom",
	'T': "Switzerland/Japan",
	'V': "France/Spain",
	'W': "Germany",
	'X': "Russia",
	'Y': "Belgium/Finland/Sweden",
	'Z': "Italy",
}
