//go:build !p2p

package p2p

import "github.com/zmlAEQ/zkbrownian/pkg/logger"

// BuildTransport returns a NoopTransport when built without the 'p2p' tag.
func BuildTransport(_ NetConfig) (Transport, error) {
	logger.Warn("p2p transport requested but 'p2p' build tag not enabled; using NoopTransport")
	return &NoopTransport{}, nil
}
