package fleet

import "math/rand"

// namePool provides human-readable handles for devices that reply to
// discovery without being listed in the profile.
var namePool = []string{
	"aeolus",
	"boreas",
	"chinook",
	"cyclone",
	"derecho",
	"foehn",
	"gale",
	"gust",
	"harmattan",
	"levante",
	"mistral",
	"monsoon",
	"pampero",
	"scirocco",
	"squall",
	"tailwind",
	"tempest",
	"tramontane",
	"typhoon",
	"zephyr",
}

// NewDeviceName picks a random handle for a freshly discovered device.
// Stability across restarts is the persistence layer's job.
func NewDeviceName() string {
	return namePool[rand.Intn(len(namePool))]
}
