package strategy

// BuildDefault assembles the full voting ensemble: each indicator
// family expanded over its parameter grid. The list is built once at
// startup and never mutated afterwards.
func BuildDefault() []Strategy {
	var out []Strategy

	for _, fast := range []int{3, 5, 8, 10, 12, 15, 20} {
		for _, slow := range []int{20, 30, 50, 100, 150, 200} {
			if fast >= slow {
				continue
			}
			out = append(out, SMACross{Fast: fast, Slow: slow})
		}
	}

	for _, fast := range []int{5, 9, 12, 20, 26} {
		for _, slow := range []int{26, 50, 100, 200} {
			if fast >= slow {
				continue
			}
			out = append(out, EMACross{Fast: fast, Slow: slow})
		}
	}

	for _, period := range []int{7, 9, 14, 21, 28} {
		for _, bands := range [][2]float64{{30, 70}, {25, 75}, {20, 80}} {
			out = append(out, RSIReversion{Period: period, OverSold: bands[0], OverBought: bands[1]})
		}
	}

	for _, p := range [][3]int{{12, 26, 9}, {8, 17, 9}, {5, 35, 5}} {
		out = append(out, MACDMomentum{Fast: p[0], Slow: p[1], Signal: p[2]})
	}

	for _, period := range []int{20, 26} {
		for _, dev := range []float64{1.5, 2.0, 2.5} {
			out = append(out, BollingerReversion{Period: period, NumDev: dev})
		}
	}

	for _, p := range [][2]int{{14, 3}, {9, 3}, {21, 5}} {
		out = append(out, StochasticOsc{KPeriod: p[0], DPeriod: p[1]})
	}

	for _, period := range []int{10, 14, 21, 28} {
		out = append(out, WilliamsR{Period: period})
	}

	for _, period := range []int{5, 10, 20, 40, 60} {
		for _, thr := range []float64{0.01, 0.02} {
			out = append(out, Momentum{Period: period, Threshold: thr})
		}
	}

	for _, period := range []int{14, 20, 30} {
		out = append(out, CCIReversion{Period: period})
	}

	for _, window := range []int{20, 40, 60} {
		for _, entry := range []float64{1.5, 2.0} {
			out = append(out, ZScoreReversion{Window: window, Entry: entry})
		}
	}

	return out
}

// MaxLookback returns the largest lookback requirement in the ensemble,
// the number of bars a cycle snapshot has to carry.
func MaxLookback(list []Strategy) int {
	max := 0
	for _, s := range list {
		if lb := s.Lookback(); lb > max {
			max = lb
		}
	}
	return max
}
