package match

import (
	"github.com/vmihailenco/msgpack/v5"
)

type engineState struct {
	TradeSeq uint64 `msgpack:"tradeSeq"`
}

func (e *Engine) PersistKey() string { return "match_engine" }

// PersistState checkpoints the trade id sequence so a resumed run keeps
// producing unique, monotonic trade ids.
func (e *Engine) PersistState() ([]byte, error) {
	return msgpack.Marshal(engineState{TradeSeq: e.tradeSeq})
}

func (e *Engine) RestoreState(data []byte) error {
	var s engineState
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return err
	}
	e.tradeSeq = s.TradeSeq
	return nil
}
