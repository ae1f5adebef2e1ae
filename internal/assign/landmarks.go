package assign

import "strings"

// FallbackCityCode is used when an id carries no known city prefix.
const FallbackCityCode = "LON"

// DefaultLandmarks lists named pickup/drop-off points per 3-letter city code.
var DefaultLandmarks = map[string][]string{
	"LON": {
		"Paddington Hub", "Kings Cross", "Waterloo Station", "Liverpool Street",
		"Canary Wharf", "Heathrow Terminal", "Shoreditch", "Camden Market",
		"Westminster", "Victoria Station", "Tower Bridge", "Hyde Park",
		"Regent's Park", "Southwark", "Euston", "Bermondsey", "Hoxton",
		"Angel", "Whitechapel", "Vauxhall",
	},
	"AUH": {
		"Sheikh Zayed Grand Mosque", "Corniche", "Marina Mall", "Yas Island",
		"Saadiyat Island", "Al Reem Island", "Khalifa City", "Al Maryah Island",
		"Abu Dhabi Airport", "Al Zahiyah", "Al Qurm", "Al Mushrif",
		"Al Danah", "Al Nahyan", "Al Rawdah", "Al Kheeran", "Hudayriat Island",
		"Al Reem", "Zayed Port", "Al Bateen",
	},
	"PAR": {
		"Eiffel Tower", "Champs-Élysées", "Notre-Dame", "Louvre Museum",
		"Gare du Nord", "Gare de Lyon", "Montmartre", "Le Marais",
		"Saint-Germain", "Bastille", "La Défense", "Place de la Concorde",
		"Arc de Triomphe", "Montparnasse", "Belleville", "Pigalle",
		"Opéra Garnier", "Île de la Cité", "Panthéon", "Marais",
	},
}

// CityCode extracts the upper-cased prefix before the first dash, e.g. LON-DR-001 -> LON.
func CityCode(id string) string {
	prefix, _, _ := strings.Cut(id, "-")
	return strings.ToUpper(prefix)
}
