package weather

import (
	"math"
	"time"

	"github.com/spf13/cast"
)

// MapPayloads builds a Record from the station's wind.json and sensors.json
// payloads. Either payload may be empty; missing keys stay nil.
func MapPayloads(wind, sensors Payload, ts time.Time) Record {
	return Record{
		Date: ts.Format(DateLayout),
		Time: ts.Format(TimeLayout),

		WindSpeed:      intField(wind, "speed"),
		WindDirection:  intField(wind, "dir"),
		WindMin1Max:    intField(wind, "min1max"),
		WindMin1Avg:    intField(wind, "min1avgspeed"),
		WindMin1Dir:    intField(wind, "min1dir"),
		WindForeverMax: intField(wind, "forevermax"),

		Temperature1: floatField(sensors, "hom"),
		Temperature2: floatField(sensors, "hom2"),
		Humidity:     floatField(sensors, "rh"),
		Pressure:     floatField(sensors, "p"),
		AvgPressure:  floatField(sensors, "ap"),
		Rain:         floatField(sensors, "csap"),

		Billenes: intField(sensors, "billenes"),
		End:      intField(sensors, "end"),
	}
}

func floatField(p Payload, key string) *float64 {
	v, ok := p[key]
	if !ok || v == nil {
		return nil
	}
	if _, isBool := v.(bool); isBool {
		return nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// intField rounds fractional readings half away from zero.
func intField(p Payload, key string) *int {
	f := floatField(p, key)
	if f == nil {
		return nil
	}
	if *f > math.MaxInt32 || *f < math.MinInt32 {
		return nil
	}
	n := int(math.Round(*f))
	return &n
}
