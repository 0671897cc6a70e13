package credits

import (
	"fmt"

	errx "github.com/bert-suite/server/internal/core/error"
)

// Bundle is a purchasable credit pack.
type Bundle struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Credits     int    `json:"credits"`
	Price       string `json:"price"`
	Description string `json:"description"`
}

var bundles = []Bundle{
	{ID: "starter", Name: "Starter Pack", Credits: 50, Price: "$4.99", Description: "Perfect for trying out a few more tools."},
	{ID: "pro", Name: "Pro Pack", Credits: 150, Price: "$9.99", Description: "Our best value for frequent users."},
	{ID: "mega", Name: "Mega Pack", Credits: 500, Price: "$24.99", Description: "Unlock the full potential of the AI suite."},
}

// Bundles lists purchasable bundles in display order.
func Bundles() []Bundle {
	out := make([]Bundle, len(bundles))
	copy(out, bundles)
	return out
}

func LookupBundle(id string) (Bundle, error) {
	for _, b := range bundles {
		if b.ID == id {
			return b, nil
		}
	}
	return Bundle{}, errx.NotFound(errx.ErrUnknownBundle, fmt.Sprintf("Unknown credit bundle %q.", id))
}
