package main

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/kacperjurak/golgadcore"
)

// parseFile reads one hit per line as "E x y" (MeV, mm, mm). Blank lines
// and lines starting with '#' are skipped.
func parseFile(file string) ([]lgadcore.HitSample, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var hits []lgadcore.HitSample
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		l := strings.Fields(line)
		if len(l) < 3 {
			return nil, fmt.Errorf("%s:%d: want 'E x y', got %q", file, lineNo, line)
		}
		var lineVals [3]float64
		for i := 0; i < 3; i++ {
			val, err := strconv.ParseFloat(l[i], 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", file, lineNo, err)
			}
			lineVals[i] = val
		}
		hits = append(hits, lgadcore.HitSample{
			EventID: int64(len(hits)),
			Energy:  lineVals[0],
			X:       lineVals[1],
			Y:       lineVals[2],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return hits, nil
}

// randomHits draws n hits uniformly over the detector plane
func randomHits(n int, energy, detectorSize float64, seed int64) []lgadcore.HitSample {
	rng := rand.New(rand.NewSource(seed))
	hits := make([]lgadcore.HitSample, n)
	for i := range hits {
		hits[i] = lgadcore.HitSample{
			EventID: int64(i),
			Energy:  energy,
			X:       (rng.Float64() - 0.5) * detectorSize,
			Y:       (rng.Float64() - 0.5) * detectorSize,
		}
	}
	return hits
}
