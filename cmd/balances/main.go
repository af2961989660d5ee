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

	"tabcoin-ledger-go/internal/api"
	"tabcoin-ledger-go/internal/common"
	"tabcoin-ledger-go/internal/config"
	"tabcoin-ledger-go/internal/models"

	"go.uber.org/zap"
)

type balanceStats struct {
	totalRecipients int
	totalEntries    int
	failed          int
}

func printEntries(entries []models.EntryRecord) {
	for i, entry := range entries {
		isLast := i == len(entries)-1
		fmt.Printf("%s %-8s %6s  (event %s, %s)\n",
			common.BoxPrefix(isLast),
			entry.Currency,
			common.FormatAmount(entry.Amount),
			common.ShortId(entry.OriginEventId),
			entry.CreatedAt.Format("2006-01-02 15:04:05"))
	}
}

func processUser(ctx context.Context, svc *api.LedgerService, recipient common.RecipientInfo, historyLimit int) (int, error) {
	wallet, err := svc.GetUserWallet(ctx, recipient.Id)
	if err != nil {
		return 0, err
	}

	fmt.Printf("\n┌─ User: %s\n", recipient.Id)
	fmt.Printf("│  TabCoins: %d\n", wallet.TabCoins)
	fmt.Printf("│  TabCash:  %d\n", wallet.TabCash)
	common.PrintBoxSeparator(78)

	var entries []models.EntryRecord
	for _, currency := range []models.Currency{models.TabCoin, models.TabCash} {
		history, err := svc.GetEntryHistory(ctx, recipient.Id, currency, historyLimit, 0)
		if err != nil {
			return 0, err
		}
		entries = append(entries, history...)
	}
	printEntries(entries)
	return len(entries), nil
}

func processContent(ctx context.Context, svc *api.LedgerService, recipient common.RecipientInfo, historyLimit int) (int, error) {
	balance, err := svc.GetContentTabCoins(ctx, recipient.Id)
	if err != nil {
		return 0, err
	}

	fmt.Printf("\n┌─ Content: %s\n", recipient.Id)
	if recipient.OwnerId != "" {
		fmt.Printf("│  Owner: %s\n", recipient.OwnerId)
	}
	fmt.Printf("│  TabCoins: %d (credit %s, debit %s)\n",
		balance.TabCoins,
		common.FormatAmount(balance.TabCoinsCredit),
		common.FormatAmount(balance.TabCoinsDebit))
	common.PrintBoxSeparator(78)

	history, err := svc.GetEntryHistory(ctx, recipient.Id, models.TabCoin, historyLimit, 0)
	if err != nil {
		return 0, err
	}
	printEntries(history)
	return len(history), nil
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "Report a single user (optional)")
	contentFlag := flag.String("content", "", "Report a single content (optional)")
	seedFlag := flag.String("seed", "seed.yaml", "Seed file listing the recipients to report when no filter is given")
	historyFlag := flag.Int("history", 10, "Entries of history per currency")
	flag.Parse()

	logger.Info("Starting balance query")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	recipients, err := common.InitializeRecipients(*userFlag, *contentFlag, *seedFlag)
	if err != nil {
		logger.Fatal("Failed to initialize recipients", zap.Error(err))
	}

	common.PrintHeader("TABCOIN BALANCE REPORT", common.DefaultWidth)

	stats := balanceStats{}
	for _, recipient := range recipients {
		stats.totalRecipients++

		var count int
		var err error
		if recipient.Type == models.RecipientContent {
			count, err = processContent(ctx, services.LedgerService, recipient, *historyFlag)
		} else {
			count, err = processUser(ctx, services.LedgerService, recipient, *historyFlag)
		}
		if err != nil {
			stats.failed++
			logger.Error("Failed to process recipient",
				zap.String("recipient_id", recipient.Id),
				zap.String("recipient_type", string(recipient.Type)),
				zap.Error(err))
			continue
		}
		stats.totalEntries += count
	}

	summary := fmt.Sprintf("SUMMARY: %d recipients queried, %d entries shown, %d failed",
		stats.totalRecipients, stats.totalEntries, stats.failed)
	common.PrintFooter(summary, common.DefaultWidth)

	logger.Info("Balance query completed",
		zap.Int("recipients_queried", stats.totalRecipients),
		zap.Int("entries_shown", stats.totalEntries),
		zap.Int("failed", stats.failed))
}
