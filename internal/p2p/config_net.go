package p2p

// NetConfig carries runtime options for the gossip transport.
type NetConfig struct {
	Enable    bool     `toml:"Enable"`
	Listen    []string `toml:"Listen"`    // multiaddrs; empty means libp2p default
	Bootnodes []string `toml:"Bootnodes"` // multiaddrs dialled on start
	NAT       bool     `toml:"NAT"`
}
