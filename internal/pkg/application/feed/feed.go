package feed

import (
	"time"

	"github.com/diwise/monitoring-gasdetector/domain"
	"github.com/farshidtz/senml/v2"
)

const unitPPM = "ppm"

// BuildPack serializes an oldest-first sequence of readings into a
// SenML pack for the graph sink. Non-numeric readings are skipped, the
// graph can only plot numbers.
func BuildPack(serialNumber string, readings []domain.Reading) senml.Pack {
	pack := senml.Pack{}

	for _, r := range readings {
		if r.Value == nil {
			continue
		}

		if len(pack) == 0 {
			pack = newPack(serialNumber, r.IndicatorKey, *r.Value, r.Timestamp)
			continue
		}

		pack = append(pack, newRec(r.IndicatorKey, *r.Value, r.Timestamp))
	}

	return pack
}

func newPack(serialNumber, name string, v float64, t time.Time) senml.Pack {
	return senml.Pack{
		senml.Record{
			BaseName:    "urn:dev:ser:" + serialNumber + ":",
			BaseTime:    float64(t.Unix()),
			Name:        "0",
			StringValue: serialNumber,
		},
		newRec(name, v, t),
	}
}

func newRec(name string, v float64, t time.Time) senml.Record {
	return senml.Record{
		Name:  name,
		Value: &v,
		Time:  float64(t.Unix()),
		Unit:  unitPPM,
	}
}
