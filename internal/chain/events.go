package chain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// DecodeEvent finds the first log matching eventName (and emitter, when set)
// and decodes its indexed and non-indexed fields. A receipt without such a
// log is an error; callers never fall back to a guessed value.
func DecodeEvent(contractABI abi.ABI, eventName string, emitter *common.Address, logs []*types.Log) (map[string]any, error) {
	event, ok := contractABI.Events[eventName]
	if !ok {
		return nil, fmt.Errorf("event %s is not part of the contract ABI", eventName)
	}

	var indexed abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}

	for _, lg := range logs {
		if lg == nil || len(lg.Topics) == 0 || lg.Topics[0] != event.ID {
			continue
		}
		if emitter != nil && lg.Address != *emitter {
			continue
		}

		out := make(map[string]any, len(event.Inputs))
		if len(lg.Data) > 0 {
			if err := contractABI.UnpackIntoMap(out, eventName, lg.Data); err != nil {
				return nil, fmt.Errorf("failed to decode %s data in tx %s: %w", eventName, lg.TxHash.Hex(), err)
			}
		}
		if err := abi.ParseTopicsIntoMap(out, indexed, lg.Topics[1:]); err != nil {
			return nil, fmt.Errorf("failed to decode %s topics in tx %s: %w", eventName, lg.TxHash.Hex(), err)
		}
		return out, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrEventNotFound, eventName)
}
