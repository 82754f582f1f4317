package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/weiawesome/wes-io-live/sequence-service/internal/incrementer"
)

var _ incrementer.Observer = (*Metrics)(nil)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	m := New(reg)

	m.BlockReserved("sequence", 1000, 2*time.Millisecond, nil)
	m.BlockReserved("sequence", 1000, time.Millisecond, nil)
	m.BlockReserved("hilo", 1, time.Millisecond, errors.New("disk full"))
	m.IDIssued("sequence", 1042)
	m.IDsIssued("sequence", 3)
	m.IDsIssued("ulid", 1)

	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP blocks_reserved_total Total number of blocks reserved on the backing store
# TYPE blocks_reserved_total counter
blocks_reserved_total{kind="sequence"} 2
# HELP block_reservation_errors_total Total number of failed block reservations
# TYPE block_reservation_errors_total counter
block_reservation_errors_total{kind="hilo"} 1
# HELP ids_issued_total Total number of identifiers handed out
# TYPE ids_issued_total counter
ids_issued_total{kind="sequence"} 3
ids_issued_total{kind="ulid"} 1
# HELP sequence_current_value Last identifier issued by a block-backed generator
# TYPE sequence_current_value gauge
sequence_current_value{kind="sequence"} 1042
`), "blocks_reserved_total", "block_reservation_errors_total", "ids_issued_total", "sequence_current_value"))

	assert.Equal(t, 1, testutil.CollectAndCount(m.reservationSeconds))
}
