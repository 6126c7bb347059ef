package account

import "tradesim/types"

// Valuator marks open positions to the latest bar.
type Valuator struct {
	ledger *Ledger
}

func NewValuator(l *Ledger) *Valuator {
	return &Valuator{ledger: l}
}

// OnEvent updates every account holding the event's symbol. Events without a
// bar leave valuations unchanged.
func (v *Valuator) OnEvent(ev types.MarketEvent) {
	ce, ok := ev.(types.CandleEvent)
	if !ok {
		return
	}
	for _, name := range v.ledger.names {
		v.ledger.accounts[name].UpdateProfit(ce.Symbol(), ce.Candle)
	}
}
