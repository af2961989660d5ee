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

package models

import "time"

// RatingResult is what a committed rating reports back to the caller
type RatingResult struct {
	OriginEventId  string `json:"-"`
	TabCoins       int64  `json:"tabcoins"`
	TabCoinsCredit int64  `json:"tabcoins_credit"`
	TabCoinsDebit  int64  `json:"tabcoins_debit"`
}

// UserWallet holds both balances of a user
type UserWallet struct {
	UserId   string `json:"user_id"`
	TabCoins int64  `json:"tabcoins"`
	TabCash  int64  `json:"tabcash"`
}

// ContentBalance holds the TabCoin balance of a content and the rating totals behind it
type ContentBalance struct {
	ContentId      string `json:"content_id"`
	TabCoins       int64  `json:"tabcoins"`
	TabCoinsCredit int64  `json:"tabcoins_credit"`
	TabCoinsDebit  int64  `json:"tabcoins_debit"`
}

// EntryRecord represents an entry in a recipient's history
type EntryRecord struct {
	Id            int64     `json:"id"`
	OriginEventId string    `json:"origin_event_id"`
	Currency      Currency  `json:"currency"`
	Amount        int64     `json:"amount"`
	CreatedAt     time.Time `json:"created_at"`
}

// GrantResult represents the result of a grant or publish credit
type GrantResult struct {
	Success       bool     `json:"success"`
	OriginEventId string   `json:"origin_event_id,omitempty"`
	RecipientId   string   `json:"recipient_id,omitempty"`
	Currency      Currency `json:"currency,omitempty"`
	Amount        int64    `json:"amount,omitempty"`
	NewBalance    int64    `json:"new_balance"`
	Duplicate     bool     `json:"duplicate,omitempty"`
	Error         string   `json:"error,omitempty"`
}
