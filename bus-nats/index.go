package bus_nats

import (
	"github.com/bamgoo/responder"
)

// Driver returns the NATS bus driver.
func Driver() responder.Driver {
	return &natsDriver{}
}

func init() {
	responder.RegisterDriver("nats", Driver())
}
