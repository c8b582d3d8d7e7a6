package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"

	"github.com/aihub/finance-rag/internal/auth"
	"github.com/aihub/finance-rag/internal/config"
	"github.com/aihub/finance-rag/internal/di"
	"github.com/aihub/finance-rag/internal/logger"
	"github.com/aihub/finance-rag/internal/retrieval"
	"github.com/aihub/finance-rag/internal/services"
)

func main() {
	question := flag.String("q", "", "question to answer")
	user := flag.String("user", "", "principal id issuing the query")
	role := flag.String("role", "user", "principal role (user or admin)")
	token := flag.String("token", "", "JWT bearer token, overrides -user/-role")
	sourceFile := flag.String("file", "", "optional source filename filter")
	limit := flag.Int("limit", 0, "maximum number of chunks to use, 0 for configured default")
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

	err = container.Invoke(func(query *services.QueryService, jwtService *auth.JWTService) error {
		if *question == "" {
			flag.Usage()
			return fmt.Errorf("missing -q")
		}

		principal := retrieval.Principal{ID: *user, Role: *role}
		if *token != "" {
			verified, err := jwtService.ValidateToken(*token)
			if err != nil {
				return fmt.Errorf("token rejected: %w", err)
			}
			principal = *verified
		}

		resp, err := query.AnswerQuery(context.Background(), services.QueryRequest{
			Question:   *question,
			Principal:  principal,
			SourceFile: *sourceFile,
			Limit:      *limit,
		})
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	})
	if err != nil {
		log.Fatalf("query failed: %v", err)
	}
}
