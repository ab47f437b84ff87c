package lcdielectrics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Sample is one analyzer acquisition at a single voltage.
type Sample struct {
	Voltage float64
	Cp      float64
	D       float64
	G       float64
	B       float64
}

// Bucket holds the voltage-indexed samples of one (temperature, frequency) pair.
// All five sequences always have the same length.
type Bucket struct {
	Volt []float64 `json:"volt"`
	Cp   []float64 `json:"Cp"`
	D    []float64 `json:"D"`
	G    []float64 `json:"G"`
	B    []float64 `json:"B"`
}

func newBucket() *Bucket {
	return &Bucket{
		Volt: []float64{},
		Cp:   []float64{},
		D:    []float64{},
		G:    []float64{},
		B:    []float64{},
	}
}

func (b *Bucket) Len() int {
	return len(b.Volt)
}

func (b *Bucket) append(s Sample) {
	b.Volt = append(b.Volt, s.Voltage)
	b.Cp = append(b.Cp, s.Cp)
	b.D = append(b.D, s.D)
	b.G = append(b.G, s.G)
	b.B = append(b.B, s.B)
}

func (b *Bucket) clone() *Bucket {
	return &Bucket{
		Volt: append([]float64{}, b.Volt...),
		Cp:   append([]float64{}, b.Cp...),
		D:    append([]float64{}, b.D...),
		G:    append([]float64{}, b.G...),
		B:    append([]float64{}, b.B...),
	}
}

func (b *Bucket) consistent() bool {
	n := len(b.Volt)
	return len(b.Cp) == n && len(b.D) == n && len(b.G) == n && len(b.B) == n
}

// ResultStore maps temperature key -> frequency key -> bucket. It is owned by
// the sequencer; everyone else works on a Clone.
type ResultStore struct {
	buckets map[string]map[string]*Bucket

	// creation order, used by exports
	tempOrder []string
	freqOrder map[string][]string

	samples int
}

func NewResultStore() *ResultStore {
	return &ResultStore{
		buckets:   make(map[string]map[string]*Bucket),
		freqOrder: make(map[string][]string),
	}
}

// EnsureBucket creates the (T, f) bucket if it does not exist. An existing
// bucket is left untouched.
func (s *ResultStore) EnsureBucket(temperature, frequency float64) {
	s.ensureKeys(TemperatureKey(temperature), FrequencyKey(frequency))
}

func (s *ResultStore) ensureKeys(tKey, fKey string) *Bucket {
	freqs, ok := s.buckets[tKey]
	if !ok {
		freqs = make(map[string]*Bucket)
		s.buckets[tKey] = freqs
		s.tempOrder = append(s.tempOrder, tKey)
	}
	b, ok := freqs[fKey]
	if !ok {
		b = newBucket()
		freqs[fKey] = b
		s.freqOrder[tKey] = append(s.freqOrder[tKey], fKey)
	}
	return b
}

// AppendSample adds one value to each sequence of the (T, f) bucket.
func (s *ResultStore) AppendSample(temperature, frequency float64, sample Sample) error {
	b := s.Bucket(temperature, frequency)
	if b == nil {
		return fmt.Errorf("no bucket for T=%s f=%s", TemperatureKey(temperature), FrequencyKey(frequency))
	}
	b.append(sample)
	s.samples++
	return nil
}

// Bucket returns the live bucket or nil.
func (s *ResultStore) Bucket(temperature, frequency float64) *Bucket {
	freqs, ok := s.buckets[TemperatureKey(temperature)]
	if !ok {
		return nil
	}
	return freqs[FrequencyKey(frequency)]
}

// IsComplete reports whether the plan sits on its final coordinate and that
// coordinate's sample has been recorded.
func (s *ResultStore) IsComplete(plan *SweepPlan) bool {
	if plan == nil || !plan.AtFinalStep() {
		return false
	}
	return s.samples == plan.Index()+1
}

// Samples is the total number of appended samples.
func (s *ResultStore) Samples() int {
	return s.samples
}

// Temperatures returns temperature keys in creation order.
func (s *ResultStore) Temperatures() []string {
	return append([]string(nil), s.tempOrder...)
}

// Frequencies returns the frequency keys of one temperature in creation order.
func (s *ResultStore) Frequencies(tKey string) []string {
	return append([]string(nil), s.freqOrder[tKey]...)
}

// BucketByKey looks a bucket up by its stringified keys.
func (s *ResultStore) BucketByKey(tKey, fKey string) *Bucket {
	return s.buckets[tKey][fKey]
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s *ResultStore) Clone() *ResultStore {
	c := NewResultStore()
	c.samples = s.samples
	for _, tKey := range s.tempOrder {
		for _, fKey := range s.freqOrder[tKey] {
			b := c.ensureKeys(tKey, fKey)
			*b = *s.buckets[tKey][fKey].clone()
		}
	}
	return c
}

// Consistent checks the equal-length invariant over every bucket.
func (s *ResultStore) Consistent() bool {
	for _, freqs := range s.buckets {
		for _, b := range freqs {
			if !b.consistent() {
				return false
			}
		}
	}
	return true
}

func (s *ResultStore) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.buckets)
}

// UnmarshalJSON reads the persisted layout. Creation order is rebuilt by
// numeric key order since JSON objects carry none.
func (s *ResultStore) UnmarshalJSON(data []byte) error {
	var raw map[string]map[string]*Bucket
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	fresh := NewResultStore()
	for _, tKey := range sortedNumericKeys(raw) {
		for _, fKey := range sortedNumericKeys(raw[tKey]) {
			b := raw[tKey][fKey]
			if b == nil {
				b = newBucket()
			}
			if !b.consistent() {
				return fmt.Errorf("bucket T=%s f=%s has unequal sequence lengths", tKey, fKey)
			}
			dst := fresh.ensureKeys(tKey, fKey)
			*dst = *b.clone()
			fresh.samples += b.Len()
		}
	}
	*s = *fresh
	return nil
}

func sortedNumericKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.ParseFloat(keys[i], 64)
		b, errB := strconv.ParseFloat(keys[j], 64)
		if errA != nil || errB != nil {
			return keys[i] < keys[j]
		}
		return a < b
	})
	return keys
}
