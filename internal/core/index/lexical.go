// Package index は字句ベースの検索シグナル（キーワード一致・TF-IDF）を提供する。
// 統計はチャンク集合から常に再構築できるキャッシュであり、真実の源ではない。
package index

import (
	"context"
	"math"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/docquery/docquery/internal/core/document"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// ChunkSource は再構築時にチャンク全件を供給するポート
type ChunkSource interface {
	ListAllChunks(ctx context.Context) ([]*document.Chunk, error)
}

// chunkStats は1チャンク分の字句統計。構築後は不変。
type chunkStats struct {
	documentID string
	terms      map[string]int // 正規化済み語 -> 出現回数
}

// LexicalIndex はコーパス全体の語統計を保持するインメモリ転置統計。
// セグメント（チャンク統計）はロック外で構築してから差し替えるため、
// 書き込みのクリティカルセクションはマップ操作のみで短い。
// ドキュメント単位で追加・削除でき、破壊的な再配置は行わない。
type LexicalIndex struct {
	mu          sync.RWMutex
	chunks      map[uuid.UUID]*chunkStats
	docChunks   map[string][]uuid.UUID // documentID -> 所属チャンク
	df          map[string]int         // 語 -> 出現チャンク数
	totalChunks int
}

// NewLexicalIndex は空のLexicalIndexを作成する
func NewLexicalIndex() *LexicalIndex {
	return &LexicalIndex{
		chunks:    make(map[uuid.UUID]*chunkStats),
		docChunks: make(map[string][]uuid.UUID),
		df:        make(map[string]int),
	}
}

// IndexDocument はドキュメントのチャンク統計を登録する。
// 同一ドキュメントが登録済みの場合は差し替える（冪等）。
func (x *LexicalIndex) IndexDocument(documentID string, chunks []*document.Chunk) {
	// 統計の構築はロックの外で行う
	built := make(map[uuid.UUID]*chunkStats, len(chunks))
	order := make([]uuid.UUID, 0, len(chunks))
	for _, chunk := range chunks {
		built[chunk.ID] = &chunkStats{
			documentID: documentID,
			terms:      termFrequencies(chunk.Content),
		}
		order = append(order, chunk.ID)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	x.removeLocked(documentID)

	for id, stats := range built {
		x.chunks[id] = stats
		for term := range stats.terms {
			x.df[term]++
		}
	}
	x.docChunks[documentID] = order
	x.totalChunks += len(built)
}

// RemoveDocument はドキュメントの全統計を取り除く。
// ドキュメント削除とアトミックに呼び出すこと。
func (x *LexicalIndex) RemoveDocument(documentID string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeLocked(documentID)
}

func (x *LexicalIndex) removeLocked(documentID string) {
	ids, ok := x.docChunks[documentID]
	if !ok {
		return
	}
	for _, id := range ids {
		stats, ok := x.chunks[id]
		if !ok {
			continue
		}
		for term := range stats.terms {
			x.df[term]--
			if x.df[term] <= 0 {
				delete(x.df, term)
			}
		}
		delete(x.chunks, id)
		x.totalChunks--
	}
	delete(x.docChunks, documentID)
}

// Rebuild は全チャンクを読み直して統計を作り直す（修復・起動時用）
func (x *LexicalIndex) Rebuild(ctx context.Context, source ChunkSource) error {
	chunks, err := source.ListAllChunks(ctx)
	if err != nil {
		return err
	}

	byDoc := make(map[string][]*document.Chunk)
	for _, chunk := range chunks {
		byDoc[chunk.DocumentID] = append(byDoc[chunk.DocumentID], chunk)
	}

	x.mu.Lock()
	x.chunks = make(map[uuid.UUID]*chunkStats)
	x.docChunks = make(map[string][]uuid.UUID)
	x.df = make(map[string]int)
	x.totalChunks = 0
	x.mu.Unlock()

	for docID, docChunks := range byDoc {
		x.IndexDocument(docID, docChunks)
	}
	return nil
}

// ChunkCount は登録済みチャンク数を返す
func (x *LexicalIndex) ChunkCount() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.totalChunks
}

// Query は1クエリ分の正規化済み語。候補ごとの再トークン化を避けるために事前計算する。
type Query struct {
	distinct []string       // 重複を除いた語
	freq     map[string]int // 語 -> クエリ内出現回数
}

// PrepareQuery はクエリ文字列をトークン化する
func (x *LexicalIndex) PrepareQuery(query string) *Query {
	freq := termFrequencies(query)
	distinct := make([]string, 0, len(freq))
	for term := range freq {
		distinct = append(distinct, term)
	}
	return &Query{distinct: distinct, freq: freq}
}

// IsEmpty はクエリに語が1つも無い場合にtrueを返す
func (q *Query) IsEmpty() bool {
	return len(q.distinct) == 0
}

// ScoreKeyword はクエリの語のうちチャンクに現れる割合を返す（[0,1]）。
// 大文字小文字を区別しない完全一致で数える。
func (x *LexicalIndex) ScoreKeyword(q *Query, chunkID uuid.UUID) float64 {
	if q.IsEmpty() {
		return 0
	}

	x.mu.RLock()
	stats, ok := x.chunks[chunkID]
	x.mu.RUnlock()
	if !ok {
		return 0
	}

	matched := 0
	for _, term := range q.distinct {
		if _, present := stats.terms[term]; present {
			matched++
		}
	}
	return float64(matched) / float64(len(q.distinct))
}

// ScoreTFIDF はクエリとチャンクのTF-IDFベクトルのコサイン類似度を返す（[0,1]）。
// IDFは平滑化した log((1+N)/(1+df)) + 1 を使う。
func (x *LexicalIndex) ScoreTFIDF(q *Query, chunkID uuid.UUID) float64 {
	if q.IsEmpty() {
		return 0
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	stats, ok := x.chunks[chunkID]
	if !ok || x.totalChunks == 0 {
		return 0
	}

	n := float64(x.totalChunks)

	// クエリベクトル
	var queryNorm float64
	queryWeights := make(map[string]float64, len(q.freq))
	for term, tf := range q.freq {
		weight := float64(tf) * x.idfLocked(term, n)
		queryWeights[term] = weight
		queryNorm += weight * weight
	}

	// チャンクベクトル。ノルムはチャンクの全語にわたって計算する。
	var chunkNorm, dot float64
	for term, tf := range stats.terms {
		weight := float64(tf) * x.idfLocked(term, n)
		chunkNorm += weight * weight
		if qw, ok := queryWeights[term]; ok {
			dot += qw * weight
		}
	}

	if queryNorm == 0 || chunkNorm == 0 {
		return 0
	}
	return dot / (math.Sqrt(queryNorm) * math.Sqrt(chunkNorm))
}

// ChunkScores は1チャンク分の字句スコア
type ChunkScores struct {
	Keyword float64
	TFIDF   float64
}

// ScoreChunks は複数チャンクの字句スコアをまとめて計算する。
// 返り値はchunkIDsと同じ順序。未登録のチャンクはゼロスコアになる。
func (x *LexicalIndex) ScoreChunks(query string, chunkIDs []uuid.UUID) []ChunkScores {
	q := x.PrepareQuery(query)
	scores := make([]ChunkScores, len(chunkIDs))
	if q.IsEmpty() {
		return scores
	}
	for i, id := range chunkIDs {
		scores[i] = ChunkScores{
			Keyword: x.ScoreKeyword(q, id),
			TFIDF:   x.ScoreTFIDF(q, id),
		}
	}
	return scores
}

func (x *LexicalIndex) idfLocked(term string, n float64) float64 {
	df := float64(x.df[term])
	return math.Log((1+n)/(1+df)) + 1
}

// termFrequencies はテキストを正規化済み語の頻度マップに変換する
func termFrequencies(text string) map[string]int {
	tokens := tokenPattern.FindAllString(strings.ToLower(text), -1)
	freq := make(map[string]int, len(tokens))
	for _, token := range tokens {
		freq[token]++
	}
	return freq
}
