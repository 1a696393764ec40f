package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/d60-Lab/anonrelay/config"
	"github.com/d60-Lab/anonrelay/internal/messenger"
	"github.com/d60-Lab/anonrelay/internal/model"
	"github.com/d60-Lab/anonrelay/internal/repository"
	"github.com/d60-Lab/anonrelay/internal/reputation"
	"github.com/d60-Lab/anonrelay/internal/service"
	"github.com/d60-Lab/anonrelay/pkg/database"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// modbench: N 条举报，每条由 CONC 个管理员同时点 ban / dismiss，
// 校验每条举报恰好只有一个终态胜出
func main() {
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	if err := repository.AutoMigrate(db); err != nil {
		panic(err)
	}

	levels := make([]reputation.Level, 0, len(cfg.Reputation.Tiers))
	for _, t := range cfg.Reputation.Tiers {
		levels = append(levels, reputation.Level{Threshold: t.Threshold, Label: t.Label})
	}
	reg := repository.NewRegistry(db, must(reputation.New(levels, cfg.Reputation.MaxLabel)))

	transport := messenger.NewFake()
	relay := service.NewRelay(reg, transport, time.Second)
	moderation := service.NewModeration(reg, service.NewNotifier(transport, time.Second), cfg.Moderation.Admins, "modbench")

	ctx := context.Background()
	N := envInt("N", 1000)
	CONC := envInt("CONC", 4)
	// 每轮使用新的 id 段，避免和上一次运行的封禁记录冲突
	base := time.Now().UnixNano() / 1e6 * 1000

	// seed: receiver r_i 收到 sender s_i 的消息并举报
	seedStart := time.Now()
	reportIDs := make([]int64, 0, N)
	for i := 0; i < N; i++ {
		receiver := base + int64(i)*2 + 1
		sender := receiver + 1
		res, err := relay.Send(ctx, service.SendRequest{ReceiverID: receiver, SenderID: &sender, Text: fmt.Sprintf("bench message %d", i)})
		if err != nil {
			panic(err)
		}
		rep := must(moderation.FileReport(ctx, receiver, res.TransportMessageID))
		reportIDs = append(reportIDs, rep.Report.ID)
	}
	seedDur := time.Since(seedStart)

	// race
	var (
		mu       sync.Mutex
		lats     = make([]time.Duration, 0, N*CONC)
		outcomes = map[service.Outcome]int{}
		winners  = make(map[int64]int, N)
		errCount int
	)
	feed := make(chan int64, N)
	for _, id := range reportIDs {
		feed <- id
	}
	close(feed)

	raceStart := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < CONC; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range feed {
				var inner sync.WaitGroup
				for a := 0; a < CONC; a++ {
					inner.Add(1)
					go func(admin int64) {
						defer inner.Done()
						t0 := time.Now()
						var (
							out service.Outcome
							err error
						)
						if admin%2 == 0 {
							out, err = moderation.AdminBan(ctx, id, admin)
						} else {
							out, err = moderation.AdminDismiss(ctx, id, admin)
						}
						d := time.Since(t0)
						mu.Lock()
						defer mu.Unlock()
						lats = append(lats, d)
						if err != nil {
							errCount++
							return
						}
						outcomes[out]++
						if out != service.OutcomeAlreadyHandled {
							winners[id]++
						}
					}(int64(a + 1))
				}
				inner.Wait()
			}
		}()
	}
	wg.Wait()
	raceDur := time.Since(raceStart)

	// verify
	badWinners, notTerminal := 0, 0
	for _, id := range reportIDs {
		if winners[id] != 1 {
			badWinners++
		}
		rep := must(reg.GetReport(ctx, id))
		if rep.Status == model.ReportPending || rep.ReviewedAt == nil {
			notTerminal++
		}
	}

	pct := func(vs []time.Duration, p float64) time.Duration {
		if len(vs) == 0 {
			return 0
		}
		xs := append([]time.Duration(nil), vs...)
		sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
		k := int(math.Ceil(p*float64(len(xs)))) - 1
		if k < 0 {
			k = 0
		}
		if k >= len(xs) {
			k = len(xs) - 1
		}
		return xs[k]
	}

	fmt.Printf("N=%d, CONC=%d\n", N, CONC)
	fmt.Printf("Seed (send + report) total: %v, per report: %v\n", seedDur, seedDur/time.Duration(N))
	fmt.Printf("Admin actions total: %v, ops=%d, p50: %v, p95: %v, p99: %v, errors=%d\n",
		raceDur, len(lats), pct(lats, 0.50), pct(lats, 0.95), pct(lats, 0.99), errCount)
	fmt.Printf("Outcomes: banned=%d already_banned=%d dismissed=%d already_handled=%d\n",
		outcomes[service.OutcomeBanned], outcomes[service.OutcomeAlreadyBanned], outcomes[service.OutcomeDismissed], outcomes[service.OutcomeAlreadyHandled])
	fmt.Printf("Reports with winners != 1: %d, not terminal: %d\n", badWinners, notTerminal)
	if badWinners > 0 || notTerminal > 0 || errCount > 0 {
		os.Exit(1)
	}
}
