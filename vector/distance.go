package vector

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// cost orders candidates inside an index: lower is closer for every metric.
func (m Metric) cost(a, b []float32) float32 {
	if m == MetricL2 {
		return squaredL2(a, b)
	}
	return -dot(a, b)
}

// distance converts a cost back into the value the index reports:
// the inner product for IP and the squared euclidean distance for L2.
func (m Metric) distance(cost float32) float32 {
	if m == MetricL2 {
		return cost
	}
	return -cost
}

// score maps a reported distance onto a higher-is-better scale.
func (m Metric) score(distance float32) float32 {
	if m == MetricL2 {
		return 1 / (1 + distance)
	}
	return distance
}
