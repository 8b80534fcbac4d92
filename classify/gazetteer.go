package classify

// gazetteer is the built-in list of place names matched as lowercase
// substrings. It intentionally favors recall over precision: a false
// location match only misfiles an event into a different window bucket.
var gazetteer = []string{
	// US states and territories commonly seen in feeds
	"california", "texas", "florida", "oklahoma", "kansas", "louisiana",
	"oregon", "washington", "colorado", "arizona", "nevada", "alaska",
	"hawaii", "puerto rico", "north carolina", "south carolina",
	// US cities
	"los angeles", "san francisco", "seattle", "portland", "houston",
	"miami", "new orleans", "new york", "chicago", "san diego",
	// Countries and regions
	"japan", "indonesia", "philippines", "india", "bangladesh", "nepal",
	"pakistan", "turkey", "greece", "italy", "spain", "portugal",
	"mexico", "chile", "peru", "haiti", "brazil", "colombia",
	"australia", "new zealand", "china", "taiwan", "vietnam", "thailand",
	"morocco", "algeria", "kenya", "mozambique", "south africa",
	// Cities abroad frequently referenced in disaster reporting
	"tokyo", "osaka", "manila", "jakarta", "istanbul", "athens",
	"mexico city", "santiago", "lima", "wellington", "christchurch",
	"mumbai", "chennai", "dhaka", "kathmandu", "karachi",
}
