package dispatch

// PickDriver chooses uniformly at random among the drivers whose category
// matches vehicleClass. When no driver matches, the whole pool is used
// instead. intn must behave like rand.IntN.
func PickDriver(pool []Driver, vehicleClass string, intn func(int) int) (Driver, bool) {
	if len(pool) == 0 {
		return Driver{}, false
	}

	want := CategoryOf(vehicleClass)
	candidates := make([]Driver, 0, len(pool))
	for _, d := range pool {
		if d.Category() == want {
			candidates = append(candidates, d)
		}
	}
	if len(candidates) == 0 {
		candidates = pool
	}
	return candidates[intn(len(candidates))], true
}
