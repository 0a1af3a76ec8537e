package bitswap

import "github.com/libp2p/go-libp2p/core/protocol"

// Protocol IDs this core speaks; SupportedProtocols lists them newest
// first. A swarm runtime
// negotiating the connection handler's protocol should offer all of
// them and let multistream-select pick the best common one (spec.md
// §6 "External Interfaces").
var (
	ProtocolBitswapNoVers = protocol.ID("/ipfs/bitswap")
	ProtocolBitswapOneOne = protocol.ID("/ipfs/bitswap/1.1.0")
	ProtocolBitswapOneTwo = protocol.ID("/ipfs/bitswap/1.2.0")
	ProtocolBitswap       = protocol.ID("/ipfs/bitswap/1.0.0")

	// SupportedProtocols lists every protocol ID this core accepts an
	// inbound stream for, in the order a connection handler should try
	// them during multistream negotiation.
	SupportedProtocols = []protocol.ID{
		ProtocolBitswapOneTwo,
		ProtocolBitswapOneOne,
		ProtocolBitswap,
		ProtocolBitswapNoVers,
	}
)
