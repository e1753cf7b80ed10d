// store/schema.go
package store

const Schema = `
CREATE TABLE IF NOT EXISTS bars (
	symbol TEXT NOT NULL,
	timestamp DATETIME NOT NULL,
	open REAL NOT NULL,
	high REAL NOT NULL,
	low REAL NOT NULL,
	close REAL NOT NULL,
	volume REAL NOT NULL,
	trade_count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (symbol, timestamp)
);

CREATE TABLE IF NOT EXISTS posts (
	keyword TEXT NOT NULL,
	author TEXT NOT NULL,
	timestamp DATETIME NOT NULL,
	likes INTEGER NOT NULL DEFAULT 0,
	shares INTEGER NOT NULL DEFAULT 0,
	quotes INTEGER NOT NULL DEFAULT 0,
	replies INTEGER NOT NULL DEFAULT 0,
	text TEXT NOT NULL,
	sentiment REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (keyword, author, timestamp)
);

CREATE TABLE IF NOT EXISTS features (
	symbol TEXT NOT NULL,
	timestamp DATETIME NOT NULL,
	open REAL NOT NULL,
	high REAL NOT NULL,
	low REAL NOT NULL,
	close REAL NOT NULL,
	volume REAL NOT NULL,
	sma_20 REAL NOT NULL,
	sma_50 REAL NOT NULL,
	sma_100 REAL NOT NULL,
	volatility REAL NOT NULL,
	bollinger_upper REAL NOT NULL,
	bollinger_lower REAL NOT NULL,
	momentum_5 REAL,
	PRIMARY KEY (symbol, timestamp)
);

CREATE TABLE IF NOT EXISTS merged (
	symbol TEXT NOT NULL,
	timestamp DATETIME NOT NULL,
	open REAL NOT NULL,
	high REAL NOT NULL,
	low REAL NOT NULL,
	close REAL NOT NULL,
	volume REAL NOT NULL,
	sma_20 REAL NOT NULL,
	sma_50 REAL NOT NULL,
	sma_100 REAL NOT NULL,
	volatility REAL NOT NULL,
	bollinger_upper REAL NOT NULL,
	bollinger_lower REAL NOT NULL,
	momentum_5 REAL,
	sentiment REAL NOT NULL DEFAULT 0,
	likes INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (symbol, timestamp)
);

CREATE INDEX IF NOT EXISTS idx_posts_keyword_time ON posts(keyword, timestamp);
CREATE INDEX IF NOT EXISTS idx_features_time ON features(timestamp);
CREATE INDEX IF NOT EXISTS idx_merged_time ON merged(timestamp);
`
