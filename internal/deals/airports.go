package deals

import "strings"

// Airport is a selectable departure airport.
type Airport struct {
	Code string
	Name string
	City string
}

// Origins are the preset departure airports offered to travelers.
var Origins = []Airport{
	{Code: "ICN", Name: "Incheon International", City: "Seoul"},
	{Code: "GMP", Name: "Gimpo International", City: "Seoul"},
	{Code: "PUS", Name: "Gimhae International", City: "Busan"},
}

var displayNames = map[string]string{
	"ICN": "Seoul Incheon",
	"GMP": "Seoul Gimpo",
	"PUS": "Busan",
	"CJU": "Jeju",
	"NRT": "Tokyo Narita",
	"HND": "Tokyo Haneda",
	"KIX": "Osaka",
	"FUK": "Fukuoka",
	"CTS": "Sapporo",
	"OKA": "Okinawa",
	"HKG": "Hong Kong",
	"TPE": "Taipei",
	"PVG": "Shanghai",
	"PEK": "Beijing",
	"BKK": "Bangkok",
	"SGN": "Ho Chi Minh City",
	"HAN": "Hanoi",
	"DAD": "Da Nang",
	"SIN": "Singapore",
	"MNL": "Manila",
	"CEB": "Cebu",
	"KUL": "Kuala Lumpur",
	"DPS": "Bali",
	"GUM": "Guam",
	"SYD": "Sydney",
	"LAX": "Los Angeles",
	"JFK": "New York",
	"SFO": "San Francisco",
	"HNL": "Honolulu",
	"LHR": "London",
	"CDG": "Paris",
	"FRA": "Frankfurt",
	"MAD": "Madrid",
	"BCN": "Barcelona",
	"FCO": "Rome",
	"BOS": "Boston",
}

// DisplayName resolves an IATA code to a traveler-facing name. Unknown codes
// are returned as given.
func DisplayName(code string) string {
	if name, ok := displayNames[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return name
	}
	return code
}
