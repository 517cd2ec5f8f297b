package wsserver

import (
	"context"
	"encoding/json"

	"aggregator/domain/book"
	"aggregator/service"
)

type levelJSON struct {
	Exchange string  `json:"exchange"`
	Price    float64 `json:"price"`
	Amount   float64 `json:"amount"`
}

type summaryJSON struct {
	Spread float64     `json:"spread"`
	Bids   []levelJSON `json:"bids"`
	Asks   []levelJSON `json:"asks"`
}

// Encode renders a summary as the JSON frame sent to clients.
func Encode(s book.Summary) ([]byte, error) {
	return json.Marshal(summaryJSON{
		Spread: s.Spread,
		Bids:   levelsJSON(s.Bids),
		Asks:   levelsJSON(s.Asks),
	})
}

func levelsJSON(levels []book.Level) []levelJSON {
	out := make([]levelJSON, len(levels))
	for i, l := range levels {
		out[i] = levelJSON{Exchange: l.Exchange, Price: l.Price, Amount: l.Amount}
	}
	return out
}

// Pump publishes a fresh merged summary to hub after every store
// change until ctx is done.
func Pump(ctx context.Context, agg *service.Aggregator, hub *Hub) {
	changes, stop := agg.Store().Watch()
	defer stop()

	var last book.Summary
	first := true
	for {
		cur := agg.Merged()
		if first || !cur.Equal(last) {
			msg, err := Encode(cur)
			if err != nil {
				hub.logger.Printf("[ws] encode summary: %v", err)
			} else {
				hub.Publish(msg)
				last, first = cur, false
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-changes:
		}
	}
}
