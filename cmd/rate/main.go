/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"tabcoin-ledger-go/internal/api"
	"tabcoin-ledger-go/internal/common"
	"tabcoin-ledger-go/internal/config"
	"tabcoin-ledger-go/internal/models"
	"tabcoin-ledger-go/internal/rating"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type rateStats struct {
	mu        sync.Mutex
	succeeded int
	rejected  map[rating.Kind]int
}

func (s *rateStats) record(outcome *api.RateOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if outcome.Success {
		s.succeeded++
		return
	}
	s.rejected[outcome.Problem.Kind]++
}

func printOutcome(i int, outcome *api.RateOutcome) {
	if outcome.Success {
		fmt.Printf("│  #%-3d committed  content=%d credit=%s debit=%s (event %s)\n",
			i,
			outcome.Result.TabCoins,
			common.FormatAmount(outcome.Result.TabCoinsCredit),
			common.FormatAmount(outcome.Result.TabCoinsDebit),
			common.ShortId(outcome.Result.OriginEventId))
		return
	}

	p := outcome.Problem
	retry := "do not retry"
	if p.Kind.Retryable() {
		retry = "retry later"
	}
	fmt.Printf("│  #%-3d rejected   %s (%d %s): %s\n", i, p.Kind, p.StatusCode, retry, p.Message)
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	voterFlag := flag.String("voter", "", "Voter user id")
	contentFlag := flag.String("content", "", "Content id")
	ownerFlag := flag.String("owner", "", "Content owner user id")
	directionFlag := flag.String("direction", "credit", "credit or debit")
	concurrencyFlag := flag.Int("concurrency", 1, "Number of identical requests to send at once")
	timeoutFlag := flag.Duration("timeout", 30*time.Second, "Timeout for the whole burst")
	flag.Parse()

	if *concurrencyFlag < 1 {
		fmt.Fprintln(os.Stderr, "concurrency must be at least 1")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	req := rating.RateRequest{
		VoterId:   *voterFlag,
		ContentId: *contentFlag,
		OwnerId:   *ownerFlag,
		Direction: models.Direction(*directionFlag),
	}

	ctx, cancel := context.WithTimeout(ctx, *timeoutFlag)
	defer cancel()

	common.PrintHeader(fmt.Sprintf("RATING %s -> %s (%s x%d)", req.VoterId, req.ContentId, req.Direction, *concurrencyFlag), common.DefaultWidth)

	stats := &rateStats{rejected: make(map[rating.Kind]int)}
	outcomes := make([]*api.RateOutcome, *concurrencyFlag)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < *concurrencyFlag; i++ {
		i := i
		g.Go(func() error {
			outcome, err := services.LedgerService.RateContent(gctx, req)
			if err != nil {
				return err
			}
			outcomes[i] = outcome
			stats.record(outcome)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Fatal("Rating burst failed", zap.Error(err))
	}

	for i, outcome := range outcomes {
		printOutcome(i+1, outcome)
	}

	wallet, err := services.LedgerService.GetUserWallet(ctx, req.VoterId)
	if err == nil {
		fmt.Printf("└  voter %s now holds %d TabCoins and %d TabCash\n", wallet.UserId, wallet.TabCoins, wallet.TabCash)
	}

	summary := fmt.Sprintf("SUMMARY: %d committed, %d insufficient funds, %d too many actions, %d contention, %d invalid",
		stats.succeeded,
		stats.rejected[rating.KindInsufficientFunds],
		stats.rejected[rating.KindTooManyActions],
		stats.rejected[rating.KindTooManyConcurrentRequests],
		stats.rejected[rating.KindMissingField]+stats.rejected[rating.KindInvalidField])
	common.PrintFooter(summary, common.DefaultWidth)

	logger.Info("Rating burst completed",
		zap.Int("requests", *concurrencyFlag),
		zap.Int("committed", stats.succeeded))
}
