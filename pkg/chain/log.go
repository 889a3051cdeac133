package chain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Fields are the named arguments of a log.
type Fields map[string]interface{}

// Log is an event emitted by a contract.
type Log struct {
	Index     uint64         `json:"index"`
	TxHash    common.Hash    `json:"tx_hash"`
	Address   common.Address `json:"address"`
	Contract  string         `json:"contract"`
	Name      string         `json:"name"`
	Fields    Fields         `json:"fields"`
	BlockTime time.Time      `json:"block_time"`
}

// Receipt is the outcome of a committed transaction.
type Receipt struct {
	TxHash    common.Hash    `json:"tx_hash"`
	From      common.Address `json:"from"`
	To        common.Address `json:"to"`
	Value     *big.Int       `json:"value"`
	Logs      []Log          `json:"logs"`
	BlockTime time.Time      `json:"block_time"`
}

// FindLog returns the first log with the given name.
func (r *Receipt) FindLog(name string) (Log, bool) {
	if r == nil {
		return Log{}, false
	}
	for _, l := range r.Logs {
		if l.Name == name {
			return l, true
		}
	}
	return Log{}, false
}
