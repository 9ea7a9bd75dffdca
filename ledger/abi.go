package ledger

import (
	"bytes"
	_ "embed"
	"fmt"
	"math/big"
	"os"
	"sort"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/semanticallynull/rideledger-backend/ride"
)

//go:embed RideSharing.abi.json
var rideSharingABI []byte

const (
	methodCreate    = "createRide"
	methodAccept    = "acceptRide"
	methodComplete  = "completeRide"
	methodCancel    = "cancelRide"
	methodDelete    = "deleteRide"
	methodRide      = "rides"
	methodAvailable = "getAvailableRides"
	methodByRider   = "getRiderRides"
	methodByDriver  = "getDriverRides"

	eventRideCreated = "RideCreated"
)

// RideSharingABI parses the contract interface compiled into the binary.
func RideSharingABI() (abi.ABI, error) {
	return abi.JSON(bytes.NewReader(rideSharingABI))
}

// LoadABI reads a contract interface from a build artifact, for deployments whose contract was
// rebuilt. An empty path returns the embedded interface.
func LoadABI(path string) (abi.ABI, error) {
	if path == "" {
		return RideSharingABI()
	}
	f, err := os.Open(path)
	if err != nil {
		return abi.ABI{}, err
	}
	defer f.Close()
	return abi.JSON(f)
}

// rideTuple mirrors the contract's Ride struct. Field names follow the abi package's
// camel-casing of the component names.
type rideTuple struct {
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

func (t rideTuple) toRide() ride.Ride {
	r := ride.Ride{
		ID:         t.RideId.Uint64(),
		Rider:      t.Rider.Hex(),
		Pickup:     t.PickupLocation,
		Drop:       t.DropLocation,
		PriceWei:   new(big.Int).Set(t.Price),
		DistanceKm: t.Distance.Uint64(),
		Accepted:   t.IsAccepted,
		Completed:  t.IsCompleted,
		Cancelled:  t.IsCancelled,
	}
	if t.Driver != (common.Address{}) {
		r.Driver = t.Driver.Hex()
	}
	return r
}

// decodeRides turns the output of a Ride[] view into rides sorted by id, newest first.
func decodeRides(contract abi.ABI, method string, data []byte) ([]ride.Ride, error) {
	out, err := contract.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("unpack %s: %d outputs", method, len(out))
	}

	tuples, err := convertTuples(out[0])
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}

	rides := make([]ride.Ride, 0, len(tuples))
	for _, t := range tuples {
		rides = append(rides, t.toRide())
	}
	sort.Slice(rides, func(i, j int) bool { return rides[i].ID > rides[j].ID })
	return rides, nil
}

func convertTuples(v any) (tuples []rideTuple, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("unexpected ride tuple shape: %v", p)
		}
	}()
	return *abi.ConvertType(v, new([]rideTuple)).(*[]rideTuple), nil
}

// decodeRide decodes the public rides(uint256) getter. A zero id is the contract's empty
// slot: the ride never existed or was deleted.
func decodeRide(contract abi.ABI, data []byte) (ride.Ride, error) {
	values, err := contract.Unpack(methodRide, data)
	if err != nil {
		return ride.Ride{}, fmt.Errorf("unpack %s: %w", methodRide, err)
	}
	var t rideTuple
	if err := contract.Methods[methodRide].Outputs.Copy(&t, values); err != nil {
		return ride.Ride{}, fmt.Errorf("unpack %s: %w", methodRide, err)
	}
	if t.RideId == nil || t.RideId.Sign() == 0 {
		return ride.Ride{}, ride.ErrNotFound
	}
	return t.toRide(), nil
}
