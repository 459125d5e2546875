package memo_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/textguard/internal/domain/memo"
	. "github.com/smartystreets/goconvey/convey"
)

func TestKey(t *testing.T) {
	Convey("Given memo keys", t, func() {
		Convey("Then equal inputs hash equally", func() {
			So(memo.Key("gpt2", "hello"), ShouldEqual, memo.Key("gpt2", "hello"))
		})

		Convey("And the namespace separates otherwise equal texts", func() {
			So(memo.Key("gpt2", "hello"), ShouldNotEqual, memo.Key("gpt2-medium", "hello"))
		})

		Convey("And the separator prevents boundary ambiguity", func() {
			So(memo.Key("ab", "c"), ShouldNotEqual, memo.Key("a", "bc"))
		})
	})
}

func TestInMemoryMemo(t *testing.T) {
	Convey("Given a new in-memory memo", t, func() {
		ctx := context.Background()

		Convey("When created with default options", func() {
			m := memo.NewInMemory[string]()

			Convey("Then it starts empty", func() {
				So(m.Size(), ShouldEqual, int64(0))
				_, ok := m.Get(ctx, 1)
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When values are stored", func() {
			m := memo.NewInMemory[string](memo.WithMaxSize(10))
			m.Put(ctx, 1, "one")
			m.Put(ctx, 2, "two")

			Convey("Then they can be read back", func() {
				v, ok := m.Get(ctx, 1)
				So(ok, ShouldBeTrue)
				So(v, ShouldEqual, "one")
				So(m.Size(), ShouldEqual, int64(2))
			})

			Convey("And storing an existing key replaces the value without growing", func() {
				m.Put(ctx, 1, "uno")
				v, _ := m.Get(ctx, 1)
				So(v, ShouldEqual, "uno")
				So(m.Size(), ShouldEqual, int64(2))
			})
		})

		Convey("When the memo is full", func() {
			m := memo.NewInMemory[int](memo.WithMaxSize(3))
			for i := 1; i <= 4; i++ {
				m.Put(ctx, uint64(i), i)
			}

			Convey("Then the oldest entry is evicted", func() {
				So(m.Size(), ShouldEqual, int64(3))
				_, ok := m.Get(ctx, 1)
				So(ok, ShouldBeFalse)
				for i := 2; i <= 4; i++ {
					v, ok := m.Get(ctx, uint64(i))
					So(ok, ShouldBeTrue)
					So(v, ShouldEqual, i)
				}
			})

			Convey("And eviction keeps working as more entries arrive", func() {
				for i := 5; i <= 10; i++ {
					m.Put(ctx, uint64(i), i)
				}
				So(m.Size(), ShouldEqual, int64(3))
				_, ok := m.Get(ctx, 7)
				So(ok, ShouldBeFalse)
				_, ok = m.Get(ctx, 8)
				So(ok, ShouldBeTrue)
			})
		})

		Convey("When the memo has size one", func() {
			m := memo.NewInMemory[int](memo.WithMaxSize(1))
			m.Put(ctx, 1, 1)
			m.Put(ctx, 2, 2)

			Convey("Then only the latest entry remains", func() {
				So(m.Size(), ShouldEqual, int64(1))
				_, ok := m.Get(ctx, 1)
				So(ok, ShouldBeFalse)
				v, ok := m.Get(ctx, 2)
				So(ok, ShouldBeTrue)
				So(v, ShouldEqual, 2)
			})
		})

		Convey("When the memo is disabled", func() {
			m := memo.NewInMemory[int](memo.WithMaxSize(0))
			m.Put(ctx, 1, 1)

			Convey("Then nothing is stored", func() {
				So(m.Size(), ShouldEqual, int64(0))
				_, ok := m.Get(ctx, 1)
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When used concurrently", func() {
			m := memo.NewInMemory[string](memo.WithMaxSize(50))
			var wg sync.WaitGroup
			for g := 0; g < 8; g++ {
				wg.Add(1)
				go func(g int) {
					defer wg.Done()
					for i := 0; i < 100; i++ {
						k := uint64(g*100 + i)
						m.Put(ctx, k, fmt.Sprint(k))
						m.Get(ctx, k)
					}
				}(g)
			}
			wg.Wait()

			Convey("Then the bound holds", func() {
				So(m.Size(), ShouldEqual, int64(50))
			})
		})
	})
}
