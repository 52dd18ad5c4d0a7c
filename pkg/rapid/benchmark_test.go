package rapid_test

import (
	"context"
	"strconv"
	"testing"

	"github.com/Sumatoshi-tech/indexbag/pkg/rapid"
)

func BenchmarkRandomOps(b *testing.B) {
	for _, base := range []int{0, 10, 100, 1000, 10000} {
		b.Run("on_"+strconv.Itoa(base), func(b *testing.B) {
			ctx := context.Background()

			driver, err := rapid.New()
			if err != nil {
				b.Fatal(err)
			}

			err = driver.Prefill(ctx, base)
			if err != nil {
				b.Fatal(err)
			}

			b.ResetTimer()

			for range b.N {
				for range 100 {
					err = driver.Step(ctx)
					if err != nil {
						b.Fatal(err)
					}
				}
			}
		})
	}
}
