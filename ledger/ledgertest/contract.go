package ledgertest

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// rideStruct has the layout of the contract's Ride struct.
type rideStruct struct {
	RideId         *big.Int
	Rider          common.Address
	Driver         common.Address
	PickupLocation string
	DropLocation   string
	Price          *big.Int
	Distance       *big.Int
	IsAccepted     bool
	IsCompleted    bool
	IsCancelled    bool
}

func (r rideStruct) available() bool {
	return !r.IsAccepted && !r.IsCompleted && !r.IsCancelled
}

type contractState struct {
	count    uint64
	rides    map[uint64]rideStruct
	byRider  map[common.Address][]uint64
	byDriver map[common.Address][]uint64
}

func newContractState() *contractState {
	return &contractState{
		rides:    map[uint64]rideStruct{},
		byRider:  map[common.Address][]uint64{},
		byDriver: map[common.Address][]uint64{},
	}
}

func (s *contractState) clone() *contractState {
	out := newContractState()
	out.count = s.count
	for id, r := range s.rides {
		out.rides[id] = r
	}
	for a, ids := range s.byRider {
		out.byRider[a] = append([]uint64(nil), ids...)
	}
	for a, ids := range s.byDriver {
		out.byDriver[a] = append([]uint64(nil), ids...)
	}
	return out
}

func (s *contractState) list(ids []uint64) []rideStruct {
	out := make([]rideStruct, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.rides[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

// run executes one contract call. value has already been moved from the sender to the contract.
func (c *Chain) run(s *contractState, balances map[common.Address]*big.Int, from common.Address, value *big.Int, data []byte) ([]byte, []*types.Log, error) {
	if len(data) < 4 {
		return nil, nil, revert("no method selector")
	}
	method, err := c.abi.MethodById(data[:4])
	if err != nil {
		return nil, nil, revert("unknown method")
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, revert("malformed arguments")
	}
	if !method.IsPayable() && value.Sign() > 0 {
		return nil, nil, revert("function is not payable")
	}

	rideArg := func() (uint64, rideStruct, error) {
		id := args[0].(*big.Int).Uint64()
		r, ok := s.rides[id]
		if !ok {
			return 0, rideStruct{}, revert("Ride does not exist")
		}
		return id, r, nil
	}

	switch method.Name {
	case "createRide":
		price := args[2].(*big.Int)
		if price.Sign() <= 0 {
			return nil, nil, revert("Price must be greater than zero")
		}
		if value.Cmp(price) != 0 {
			return nil, nil, revert("Incorrect payment amount")
		}
		s.count++
		id := s.count
		s.rides[id] = rideStruct{
			RideId:         new(big.Int).SetUint64(id),
			Rider:          from,
			PickupLocation: args[0].(string),
			DropLocation:   args[1].(string),
			Price:          new(big.Int).Set(price),
			Distance:       new(big.Int).Set(args[3].(*big.Int)),
		}
		s.byRider[from] = append(s.byRider[from], id)

		ev := c.abi.Events["RideCreated"]
		logData, err := ev.Inputs.NonIndexed().Pack(price)
		if err != nil {
			return nil, nil, err
		}
		return nil, []*types.Log{{
			Address: ContractAddress,
			Topics:  []common.Hash{ev.ID, common.BigToHash(new(big.Int).SetUint64(id)), common.BytesToHash(from.Bytes())},
			Data:    logData,
		}}, nil

	case "acceptRide":
		id, r, err := rideArg()
		if err != nil {
			return nil, nil, err
		}
		switch {
		case r.IsCancelled:
			return nil, nil, revert("Ride is cancelled")
		case r.IsCompleted:
			return nil, nil, revert("Ride already completed")
		case r.IsAccepted:
			return nil, nil, revert("Ride already accepted")
		case r.Rider == from:
			return nil, nil, revert("Rider cannot accept own ride")
		}
		r.Driver = from
		r.IsAccepted = true
		s.rides[id] = r
		s.byDriver[from] = append(s.byDriver[from], id)
		return nil, nil, nil

	case "completeRide":
		id, r, err := rideArg()
		if err != nil {
			return nil, nil, err
		}
		switch {
		case r.Rider != from:
			return nil, nil, revert("Only the rider can complete the ride")
		case r.IsCancelled:
			return nil, nil, revert("Ride is cancelled")
		case r.IsCompleted:
			return nil, nil, revert("Ride already completed")
		case !r.IsAccepted:
			return nil, nil, revert("Ride not accepted")
		}
		if err := transfer(balances, ContractAddress, r.Driver, r.Price); err != nil {
			return nil, nil, revert("escrow short")
		}
		r.IsCompleted = true
		s.rides[id] = r
		return nil, nil, nil

	case "cancelRide":
		id, r, err := rideArg()
		if err != nil {
			return nil, nil, err
		}
		switch {
		case r.Rider != from:
			return nil, nil, revert("Only the rider can cancel the ride")
		case r.IsCompleted:
			return nil, nil, revert("Ride already completed")
		case r.IsCancelled:
			return nil, nil, revert("Ride already cancelled")
		case r.IsAccepted:
			return nil, nil, revert("Ride already accepted")
		}
		if err := transfer(balances, ContractAddress, r.Rider, r.Price); err != nil {
			return nil, nil, revert("escrow short")
		}
		r.IsCancelled = true
		s.rides[id] = r
		return nil, nil, nil

	case "deleteRide":
		id, r, err := rideArg()
		if err != nil {
			return nil, nil, err
		}
		switch {
		case r.Rider != from:
			return nil, nil, revert("Only the rider can delete the ride")
		case r.IsCompleted:
			return nil, nil, revert("Ride already completed")
		case r.IsCancelled:
			return nil, nil, revert("Ride already cancelled")
		case r.IsAccepted:
			return nil, nil, revert("Ride already accepted")
		}
		if err := transfer(balances, ContractAddress, r.Rider, r.Price); err != nil {
			return nil, nil, revert("escrow short")
		}
		delete(s.rides, id)
		ids := s.byRider[from][:0]
		for _, other := range s.byRider[from] {
			if other != id {
				ids = append(ids, other)
			}
		}
		s.byRider[from] = ids
		return nil, nil, nil

	case "rides":
		r, ok := s.rides[args[0].(*big.Int).Uint64()]
		if !ok {
			r = rideStruct{RideId: new(big.Int), Price: new(big.Int), Distance: new(big.Int)}
		}
		out, err := method.Outputs.Pack(r.RideId, r.Rider, r.Driver, r.PickupLocation, r.DropLocation,
			r.Price, r.Distance, r.IsAccepted, r.IsCompleted, r.IsCancelled)
		return out, nil, err

	case "getAvailableRides":
		var available []rideStruct
		for id := uint64(1); id <= s.count; id++ {
			if r, ok := s.rides[id]; ok && r.available() {
				available = append(available, r)
			}
		}
		out, err := method.Outputs.Pack(orEmpty(available))
		return out, nil, err

	case "getRiderRides":
		out, err := method.Outputs.Pack(s.list(s.byRider[args[0].(common.Address)]))
		return out, nil, err

	case "getDriverRides":
		out, err := method.Outputs.Pack(s.list(s.byDriver[args[0].(common.Address)]))
		return out, nil, err
	}
	return nil, nil, revert("unsupported method " + method.Name)
}

func orEmpty(rides []rideStruct) []rideStruct {
	if rides == nil {
		return []rideStruct{}
	}
	return rides
}
