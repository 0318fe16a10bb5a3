package p2p

const (
	MetricP2PMessagesTotal = "p2p_msgs_total"  // {topic,direction,result}
	MetricP2PBytesTotal    = "p2p_bytes_total" // {topic,direction}
	MetricRelayInflight    = "relay_inflight"
	MetricRelayLimited     = "relay_rate_limited_total" // {kind}
)
