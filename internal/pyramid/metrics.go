package pyramid

import (
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

var (
	levelsDropped   = metrics.NewCounter("pyramid_bootstrap_levels_dropped_total")
	extentsComputed = metrics.NewCounter("pyramid_bootstrap_extents_computed_total")
	resolutionsRead = metrics.NewCounter("pyramid_bootstrap_resolutions_sampled_total")
	tilesDecoded    = metrics.NewCounter("pyramid_tiles_decoded_total")
	decodeErrors    = metrics.NewCounter("pyramid_tile_decode_errors_total")
	tilesDropped    = metrics.NewCounter("pyramid_tiles_dropped_total")
	decodeTimeouts  = metrics.NewCounter("pyramid_decode_timeouts_total")
)

func observeQuery(strategy string, start time.Time) {
	metrics.GetOrCreateHistogram(fmt.Sprintf(`pyramid_query_duration_seconds{strategy=%q}`, strategy)).UpdateDuration(start)
}
