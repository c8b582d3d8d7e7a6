package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/aihub/finance-rag/internal/config"
	"github.com/aihub/finance-rag/internal/di"
	"github.com/aihub/finance-rag/internal/logger"
	"github.com/aihub/finance-rag/internal/parser"
	"github.com/aihub/finance-rag/internal/services"
)

func main() {
	dir := flag.String("dir", "", "directory of documents to ingest")
	aclFlag := flag.String("acl", "", "comma separated principals granted access to every ingested document")
	aclMapPath := flag.String("acl-map", "", "optional JSON file mapping filename to its ACL list")
	list := flag.Bool("list", false, "list indexed documents and exit")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := logger.InitLogger(cfg.Server.Env, cfg.Server.Log.Level); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	container, err := di.BuildContainer()
	if err != nil {
		log.Fatalf("failed to build container: %v", err)
	}

	err = container.Invoke(func(
		indexer *services.IndexerService,
		worker *services.IndexWorker,
		parsers *parser.Manager,
	) error {
		ctx := context.Background()

		if *list {
			return printDocuments(ctx, indexer)
		}

		if *dir == "" {
			flag.Usage()
			return fmt.Errorf("missing -dir")
		}

		defaultACL := splitACL(*aclFlag)
		aclMap, err := loadACLMap(*aclMapPath)
		if err != nil {
			return err
		}

		entries, err := os.ReadDir(*dir)
		if err != nil {
			return fmt.Errorf("failed to read directory: %w", err)
		}

		scheduled := 0
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			filename := entry.Name()
			if !parsers.Supports(filename) {
				logger.Warn("skipping unsupported file", zap.String("filename", filename))
				continue
			}

			acl := defaultACL
			if mapped, ok := aclMap[filename]; ok {
				acl = mapped
			}

			f, err := os.Open(filepath.Join(*dir, filename))
			if err != nil {
				logger.Error("failed to open file", zap.String("filename", filename), zap.Error(err))
				continue
			}
			taskID, err := indexer.IngestFile(ctx, filename, acl, f)
			f.Close()
			if err != nil {
				logger.Error("failed to schedule indexing", zap.String("filename", filename), zap.Error(err))
				continue
			}
			logger.Info("indexing scheduled",
				zap.String("filename", filename),
				zap.String("task_id", taskID),
				zap.Strings("acl", acl),
			)
			scheduled++
		}

		// 批量模式下等待全部后台任务结束再退出
		worker.Wait()
		logger.Info("ingestion finished", zap.Int("scheduled", scheduled))

		return printDocuments(ctx, indexer)
	})
	if err != nil {
		log.Fatalf("indexer failed: %v", err)
	}
}

func printDocuments(ctx context.Context, indexer *services.IndexerService) error {
	docs, err := indexer.ListDocuments(ctx)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func splitACL(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	acl := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			acl = append(acl, trimmed)
		}
	}
	return acl
}

func loadACLMap(path string) (map[string][]string, error) {
	if path == "" {
		return map[string][]string{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read acl map: %w", err)
	}
	aclMap := make(map[string][]string)
	if err := json.Unmarshal(data, &aclMap); err != nil {
		return nil, fmt.Errorf("failed to parse acl map: %w", err)
	}
	return aclMap, nil
}
