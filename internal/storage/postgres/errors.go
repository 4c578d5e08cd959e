package postgres

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/lib/pq"

	"github.com/NN224/NNH-AI-Studio-sub005/internal/domain"
)

// classify marks retryable storage failures as transient so the commit
// retry loop can distinguish them from integrity errors. Retryable:
// serialization failures, deadlocks, lock timeouts, connection trouble.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code.Class() == "40": // serialization failures, deadlocks
			return domain.Transient(err)
		case pqErr.Code.Class() == "08": // connection exceptions
			return domain.Transient(err)
		case pqErr.Code == "55P03": // lock not available
			return domain.Transient(err)
		case pqErr.Code.Class() == "53": // insufficient resources
			return domain.Transient(err)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, context.DeadlineExceeded) {
		return domain.Transient(err)
	}
	return err
}
