package persistence

import (
	"encoding/json"
	"fmt"
)

// MarshalContractState serializes ContractState to JSON bytes.
// uint256.Int has built-in JSON support (hex quantity strings).
func MarshalContractState(cs *ContractState) ([]byte, error) {
	if cs == nil {
		return nil, fmt.Errorf("cannot marshal nil ContractState")
	}

	data, err := json.Marshal(cs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ContractState to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalContractState deserializes ContractState from JSON bytes.
func UnmarshalContractState(data []byte) (*ContractState, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var cs ContractState
	if err := json.Unmarshal(data, &cs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to ContractState: %w", err)
	}

	return &cs, nil
}
