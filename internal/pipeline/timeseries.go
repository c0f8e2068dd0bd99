package pipeline

import (
	"sort"
	"time"

	"github.com/kubeadapt/gpustat/pkg/model"
)

// TimeSeries holds one series per name, each with one value per timestamp.
// Values[i][j] belongs to Names[i] at Timestamps[j].
type TimeSeries struct {
	Timestamps []time.Time
	Names      []string
	Values     [][]float64
}

// TotalsPoint summarizes every record of one timestamp.
type TotalsPoint struct {
	Timestamp    time.Time
	TotalGPUs    int
	InactiveGPUs int
	Users        int
	AvgMemUsage  float64
}

// UserUsageSeries returns the number of GPUs held by each user at every
// timestamp. Users absent at a timestamp count 0.
func UserUsageSeries(records []model.GpuRecord) TimeSeries {
	return userSeries(records, func(rs []model.GpuRecord) float64 {
		return float64(len(rs))
	})
}

// UserMemorySeries returns each user's mean GPU memory utilization at every
// timestamp. Users absent at a timestamp count 0.
func UserMemorySeries(records []model.GpuRecord) TimeSeries {
	return userSeries(records, meanMem)
}

// TotalsSeries returns one TotalsPoint per timestamp, oldest first.
func TotalsSeries(records []model.GpuRecord) []TotalsPoint {
	buckets := bucketByTime(records)
	out := make([]TotalsPoint, 0, len(buckets))
	for _, b := range buckets {
		users := ByUser(b.records)
		out = append(out, TotalsPoint{
			Timestamp:    b.ts,
			TotalGPUs:    users.TotalGPUs,
			InactiveGPUs: users.TotalInactive,
			Users:        len(users.Rows),
			AvgMemUsage:  users.AvgMemUsage,
		})
	}
	return out
}

type timeBucket struct {
	ts      time.Time
	records []model.GpuRecord
}

func bucketByTime(records []model.GpuRecord) []timeBucket {
	index := make(map[int64]int)
	var buckets []timeBucket
	for _, r := range records {
		k := r.Timestamp.UnixNano()
		i, ok := index[k]
		if !ok {
			i = len(buckets)
			index[k] = i
			buckets = append(buckets, timeBucket{ts: r.Timestamp})
		}
		buckets[i].records = append(buckets[i].records, r)
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].ts.Before(buckets[j].ts)
	})
	return buckets
}

func userSeries(records []model.GpuRecord, value func([]model.GpuRecord) float64) TimeSeries {
	buckets := bucketByTime(records)

	userSet := make(map[string]struct{})
	for _, r := range records {
		userSet[r.Username] = struct{}{}
	}
	names := make([]string, 0, len(userSet))
	for u := range userSet {
		names = append(names, u)
	}
	sort.Strings(names)

	ts := TimeSeries{
		Timestamps: make([]time.Time, len(buckets)),
		Names:      names,
		Values:     make([][]float64, len(names)),
	}
	for i := range names {
		ts.Values[i] = make([]float64, len(buckets))
	}

	for j, b := range buckets {
		ts.Timestamps[j] = b.ts
		byUser := make(map[string][]model.GpuRecord)
		for _, r := range b.records {
			byUser[r.Username] = append(byUser[r.Username], r)
		}
		for i, name := range names {
			if rs, ok := byUser[name]; ok {
				ts.Values[i][j] = value(rs)
			}
		}
	}
	return ts
}
