package evm

import "github.com/ethereum/go-ethereum/common"

// EIP-1967 proxy storage slots: bytes32(uint256(keccak256("eip1967.proxy.<name>")) - 1)
var (
	EIP1967ImplementationSlot = common.HexToHash("0x360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc")
	EIP1967AdminSlot          = common.HexToHash("0xb53127684a568b3173ae13b9f8a6016e243e63b6e8ee1178d6a717850b5d6103")
	EIP1967BeaconSlot         = common.HexToHash("0xa3f0ad74e5423aebfd80d3ef4346578335a9a72aeaee59ff6cb3582b35133d50")
)

// InitializableLayout locates OpenZeppelin Initializable's two state variables
type InitializableLayout struct {
	Version                string
	Slot                   common.Hash
	InitializedType        string
	InitializedByteOffset  int
	InitializingByteOffset int
}

// OZInitializableNamespace is the ERC-7201 id of Initializable storage in OpenZeppelin v5
const OZInitializableNamespace = "openzeppelin.storage.Initializable"

var (
	// OZInitializableV4 packs uint8 _initialized and bool _initializing into slot 0
	OZInitializableV4 = InitializableLayout{
		Version:                "v4",
		Slot:                   common.Hash{},
		InitializedType:        "uint8",
		InitializedByteOffset:  0,
		InitializingByteOffset: 1,
	}
	// OZInitializableV5 uses the namespaced struct { uint64 _initialized; bool _initializing; }
	OZInitializableV5 = InitializableLayout{
		Version:                "v5",
		Slot:                   common.HexToHash("0xf0c57e16840df040f15088dc2f81fe391c3923bec73e23a9662efc9c229c6a00"),
		InitializedType:        "uint64",
		InitializedByteOffset:  0,
		InitializingByteOffset: 8,
	}
)
