// Command questiontester runs the question pipeline from a terminal against
// the configured model, without starting the HTTP server.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhouzirui/askmore/backend/internal/config"
	"github.com/zhouzirui/askmore/backend/internal/logging"
	"github.com/zhouzirui/askmore/backend/internal/service/ai"
	questionsvc "github.com/zhouzirui/askmore/backend/internal/service/question"
	sessionsvc "github.com/zhouzirui/askmore/backend/internal/service/session"
)

var (
	numQuestions int
	numAnswers   int
	maxAttempts  int
	interactive  bool
	userID       string
	timeout      time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "questiontester",
	Short: "手动测试问题生成流程",
	Long: `questiontester 读取与 API 服务相同的环境变量，直接调用问题生成流程。

Examples:
  # 生成 3 个问题，每题 3 个选项
  questiontester generate "recommend running shoes"

  # 指定数量并在终端中逐题作答
  questiontester generate "movies I haven't watched" -n 4 -a 5 --interactive`,
	SilenceUsage: true,
}

var generateCmd = &cobra.Command{
	Use:   "generate <query>",
	Short: "为一个请求生成澄清问题",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runGenerate,
}

func init() {
	generateCmd.Flags().IntVarP(&numQuestions, "questions", "n", 0, "问题数量，默认读取 NUM_QUESTIONS")
	generateCmd.Flags().IntVarP(&numAnswers, "answers", "a", 0, "每题选项数量，默认读取 NUM_ANSWERS")
	generateCmd.Flags().IntVar(&maxAttempts, "attempts", 0, "最大尝试次数，默认读取 MAX_RETRIES")
	generateCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "在终端中逐题作答并输出摘要")
	generateCmd.Flags().StringVar(&userID, "user-id", "", "写入检索提示词的用户 ID")
	generateCmd.Flags().DurationVar(&timeout, "timeout", 3*time.Minute, "整体超时时间")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("配置加载失败: %w", err)
	}
	if cfg.Log.Format == "json" {
		cfg.Log.Format = "console"
	}
	logger, err := logging.NewWithWriter(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	if envErr != nil {
		logger.Debug("无法加载 .env，改用系统环境变量", zap.Error(envErr))
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	generator, opts, attempts := generationPlan(ctx, cfg.AI, cfg.Questions, maxAttempts, logger)
	orchestrator := questionsvc.NewOrchestrator(generator, opts...)

	req := questionsvc.Request{
		Query:        strings.Join(args, " "),
		NumQuestions: orConfig(numQuestions, cfg.Questions.NumQuestions),
		NumAnswers:   orConfig(numAnswers, cfg.Questions.NumAnswers),
		MaxAttempts:  attempts,
		Observer: func(ev questionsvc.Event) {
			if ev.State == questionsvc.StateBackoff {
				fmt.Fprintf(cmd.ErrOrStderr(), "attempt %d/%d failed (%s), retrying in %s\n",
					ev.Attempt, ev.MaxAttempts, ev.Kind, ev.Delay)
			}
		},
	}
	result := orchestrator.Generate(ctx, req)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "attempts: %d, fallback: %t\n", result.Attempts, result.Fallback)
	if result.Fallback {
		fmt.Fprintf(out, "fallback version: %s, last error: %s\n", result.FallbackVersion, result.LastErrorKind)
	}

	if !interactive {
		encoded, err := json.MarshalIndent(result.Questions, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(encoded))
		return nil
	}

	store := sessionsvc.NewStore(sessionsvc.WithTTL(cfg.Session.TTL), sessionsvc.WithStoreLogger(logger))
	svc := sessionsvc.NewService(store, logger)
	sess, err := svc.CreateSession(ctx, req.Query, result.Questions)
	if err != nil {
		return err
	}
	return runInteractive(ctx, cmd.InOrStdin(), out, svc, sess.ID, userID)
}

// runInteractive 逐题读取标准输入中的选项编号或选项文本，最后打印摘要和检索提示词。
func runInteractive(ctx context.Context, in io.Reader, out io.Writer, svc *sessionsvc.Service, sessionID, userID string) error {
	sess, err := svc.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	scanner := bufio.NewScanner(in)
	for _, q := range sess.Questions.Questions() {
		for {
			fmt.Fprintf(out, "\n%s %s\n", q.ID, q.Text)
			for i, answer := range q.Answers {
				fmt.Fprintf(out, "  %d) %s\n", i+1, answer)
			}
			fmt.Fprint(out, "> ")
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					return err
				}
				return printSummary(ctx, out, svc, sessionID, userID)
			}

			answer := resolveAnswer(strings.TrimSpace(scanner.Text()), q.Answers)
			if answer == "" {
				// 空行跳过该题
				break
			}
			if _, err := svc.RecordAnswer(ctx, sessionID, q.ID, answer); err != nil {
				fmt.Fprintf(out, "invalid answer: %v\n", err)
				continue
			}
			break
		}
	}
	return printSummary(ctx, out, svc, sessionID, userID)
}

func resolveAnswer(input string, answers []string) string {
	if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(answers) {
		return answers[n-1]
	}
	return input
}

func printSummary(ctx context.Context, out io.Writer, svc *sessionsvc.Service, sessionID, userID string) error {
	summary, err := svc.Summarize(ctx, sessionID)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "\nSummary:")
	if len(summary) == 0 {
		fmt.Fprintln(out, "  (no answers)")
	}
	for _, entry := range summary {
		fmt.Fprintf(out, "  %s: %s\n", entry.Question, entry.Answer)
	}

	prompt, err := svc.HandoffPrompt(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nHandoff prompt:\n%s\n", prompt)
	return nil
}

// generationPlan 返回生成器、编排器选项和本次请求的尝试次数。
// 模型不可用时只尝试一次，忽略 --attempts。
func generationPlan(ctx context.Context, aiCfg config.AIConfig, questions config.QuestionConfig, flagAttempts int, logger *zap.Logger) (questionsvc.Generator, []questionsvc.Option, int) {
	opts := []questionsvc.Option{
		questionsvc.WithValidator(questionsvc.NewValidator(questions.StrictCount)),
		questionsvc.WithLogger(logger),
		questionsvc.WithMaxAttempts(questions.MaxRetries),
	}

	gen, err := ai.NewFromConfig(ctx, aiCfg, logger)
	if err != nil {
		logger.Warn("模型不可用，将直接返回兜底问题", zap.Error(err))
		opts = append(opts, questionsvc.WithMaxAttempts(1))
		return ai.Unavailable{Reason: err.Error()}, opts, 1
	}
	return gen, opts, flagAttempts
}

func orConfig(flagValue, configured int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configured
}
