package framechat

import (
	"fmt"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
)

// connIDs numbers connections so that several connections to the same peer
// keep separate series in a shared set.
var connIDs atomic.Uint64

// connMetrics are the per-connection counters, labelled by peer address and
// connection number. A shared set keeps the series of closed connections.
type connMetrics struct {
	framesSent     *metrics.Counter
	framesReceived *metrics.Counter
	bytesSent      *metrics.Counter
	bytesReceived  *metrics.Counter
	sendErrors     *metrics.Counter
}

func newConnMetrics(set *metrics.Set, peer string, pending func() float64) *connMetrics {
	id := connIDs.Add(1)
	name := func(metric string) string {
		return fmt.Sprintf(`framechat_%s{peer=%q,conn="%d"}`, metric, peer, id)
	}

	set.GetOrCreateGauge(name("outbound_pending"), pending)

	return &connMetrics{
		framesSent:     set.GetOrCreateCounter(name("frames_sent_total")),
		framesReceived: set.GetOrCreateCounter(name("frames_received_total")),
		bytesSent:      set.GetOrCreateCounter(name("bytes_sent_total")),
		bytesReceived:  set.GetOrCreateCounter(name("bytes_received_total")),
		sendErrors:     set.GetOrCreateCounter(name("send_errors_total")),
	}
}
