package main

import (
	"flag"
	"math"
	"net"
	"time"

	"github.com/phuslu/log"

	"nuha.dev/bustracker/internal/provider/droid"
)

// fakedroid plays a handheld device against the droid provider: it logs in,
// reports its permission and walks a circle around a center point.
func main() {
	addr := flag.String("addr", "localhost:5050", "droid provider address")
	serial := flag.String("serial", "fakedroid-0001", "device serial")
	permission := flag.String("permission", "fine", "reported location permission: none, coarse or fine")
	lat := flag.Float64("lat", -6.2, "route center latitude")
	lon := flag.Float64("lon", 106.8, "route center longitude")
	radius := flag.Float64("radius", 0.005, "route radius in degrees")
	interval := flag.Duration("interval", 5*time.Second, "time between location updates")
	count := flag.Int("count", 0, "number of updates to send, 0 runs forever")
	flag.Parse()

	logger := log.DefaultLogger
	logger.Context = log.NewContext(nil).Str("module", "fakedroid").Value()

	c, err := net.Dial("tcp", *addr)
	if err != nil {
		logger.Fatal().Err(err).Msg("unable to connect")
	}
	defer c.Close()

	err = droid.WriteMessage(c, droid.LOGIN, droid.LoginMessage{SnType: "aid", Serial: *serial, DeviceType: "fakedroid"})
	if err != nil {
		logger.Fatal().Err(err).Msg("login")
	}
	err = droid.WriteMessage(c, droid.STATUS, droid.StatusMessage{GpsStatus: true, Permission: *permission})
	if err != nil {
		logger.Fatal().Err(err).Msg("status")
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for i := 0; *count == 0 || i < *count; i++ {
		a := float64(i) * math.Pi / 18
		loc := droid.LocationMessage{
			GpsTime:   time.Now().UTC(),
			Latitude:  *lat + *radius*math.Sin(a),
			Longitude: *lon + *radius*math.Cos(a),
		}
		if err := droid.WriteMessage(c, droid.LOCATION_UPDATE, loc); err != nil {
			logger.Fatal().Err(err).Msg("location update")
		}
		logger.Info().Float64("latitude", loc.Latitude).Float64("longitude", loc.Longitude).Msg("sent")
		<-ticker.C
	}
}
