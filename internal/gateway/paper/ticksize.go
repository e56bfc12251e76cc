package paper

// tickSize returns the KRX price increment for price.
func tickSize(price int64) int64 {
	switch {
	case price < 2000:
		return 1
	case price < 5000:
		return 5
	case price < 20000:
		return 10
	case price < 50000:
		return 50
	case price < 200000:
		return 100
	case price < 500000:
		return 500
	default:
		return 1000
	}
}

// roundTick snaps price down to a valid increment, never below one tick.
func roundTick(price int64) int64 {
	if price < 1 {
		return 1
	}
	step := tickSize(price)
	return max(price/step*step, step)
}
