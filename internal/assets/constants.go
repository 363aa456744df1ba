package assets

import "github.com/ethereum/go-ethereum/common"

const (
	// Last Ethereum block before the Beanstalk pause; fixtures are keyed by it.
	ReseedBlockEth uint64 = 20921737
	// Beanstalk deployment block on Arbitrum.
	ReseedBlockArb uint64 = 256874794
	// Arbitrum block matching the Pinto deployment on Base (Nov-19-2024 16:50:55 UTC).
	SnapshotBlockArb uint64 = 276160746

	EthereumChainID uint64 = 1
	ArbitrumChainID uint64 = 42161
)

// Contracts holds the deployed addresses on one chain.
type Contracts struct {
	Beanstalk  common.Address
	Fertilizer common.Address
	UnripeBean common.Address
	UnripeLP   common.Address
}

// ArbContracts are the Beanstalk deployments on Arbitrum.
var ArbContracts = Contracts{
	Beanstalk:  common.HexToAddress("0xd1a0060ba708bc4bcd3da6c37efa8dedf015fb70"),
	Fertilizer: common.HexToAddress("0xfefefeca5375630d6950f40e564a27f6074845b5"),
	UnripeBean: common.HexToAddress("0x1bea054dddbca12889e07b3e076f511bf1d27543"),
	UnripeLP:   common.HexToAddress("0x1bea059c3ea15f6c10be1c53d70c75fd1266d788"),
}
