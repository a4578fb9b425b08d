// Command emberchat is a terminal front-end over the conversation core: a
// small REPL that drives text turns, voice recording, persona and session
// switching, and export/import.
package main

import (
	"bufio"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	orchestration "github.com/emberchat/ember-core/core"
	"github.com/emberchat/ember-core/core/llms/groq"
	"github.com/emberchat/ember-core/core/personas"
	"github.com/emberchat/ember-core/core/sessions"
	"github.com/emberchat/ember-core/core/speechtotext/deepgram"
	"github.com/emberchat/ember-core/internal/config"
)

func main() {
	godotenv.Load(".env")
	cfg := config.FromEnv()

	backend, err := groq.NewClient(cfg.GroqAPIKey, groq.WithModel(cfg.GroqModel))
	if err != nil {
		log.Fatalf("Failed to create generation backend: %s", err)
	}

	store, err := sessions.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open session store: %s", err)
	}
	defer store.Close()

	opts := []orchestration.OrchestratorOption{
		orchestration.WithStateChangedCallback(func(state orchestration.ChatState) {
			if state.Kind == orchestration.StateError {
				fmt.Printf("\n[error: %s — type /dismiss to continue]\n", state.Reason)
			}
		}),
		orchestration.WithPartialResponseCallback(func(cumulative string) {
			fmt.Printf("\r%s", cumulative)
		}),
		orchestration.WithMessageAppendedCallback(func(message sessions.Message) {
			if !message.IsUser {
				fmt.Printf("\n%s\n", message.Content)
			}
		}),
		orchestration.WithInterimTranscriptCallback(func(transcript string) {
			fmt.Printf("\r… %s", transcript)
		}),
		orchestration.WithTitleChangedCallback(func(_, title string) {
			fmt.Printf("\n[titled: %s]\n", title)
		}),
	}

	if cfg.DeepgramAPIKey != "" {
		transcriber, err := deepgram.NewTranscriptionClient(deepgram.WithAPIKey(cfg.DeepgramAPIKey))
		if err != nil {
			slog.Warn("voice disabled", "error", err)
		} else {
			opts = append(opts, orchestration.WithTranscriber(transcriber))
		}
	}

	orchestrator, err := orchestration.NewOrchestrator(backend, store, opts...)
	if err != nil {
		log.Fatalf("Failed to create orchestrator: %s", err)
	}
	defer orchestrator.Close()

	fmt.Println("emberchat — type a message, or /help for commands")
	printGreeting(orchestrator)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			orchestrator.Submit(line)
			continue
		}
		if quit := runCommand(orchestrator, line); quit {
			return
		}
	}
}

func printGreeting(orchestrator *orchestration.Orchestrator) {
	snapshot := orchestrator.Snapshot()
	for _, message := range snapshot.Session.Messages {
		if !message.IsUser {
			fmt.Println(message.Content)
		}
	}
}

func runCommand(orchestrator *orchestration.Orchestrator, line string) (quit bool) {
	fields := strings.Fields(line)
	command, args := fields[0], fields[1:]

	switch command {
	case "/help":
		fmt.Println(`commands:
  /record            start voice recording
  /stop              stop recording and submit the transcript
  /persona [id]      list personas or switch to one
  /sessions          list stored sessions
  /switch <id>       switch to a stored session
  /new               start a fresh session
  /delete <id>       delete a stored session
  /delmsg <id>       delete a message from the current session
  /react <id> <r>    toggle a reaction on a message
  /export <file>     export the current session
  /import <file>     import a session
  /backup <file>     export all sessions plus settings
  /clear             delete all stored data
  /dismiss           dismiss a blocking error
  /quit              exit`)

	case "/record":
		if err := orchestrator.StartRecording(); err != nil {
			fmt.Println("cannot record:", err)
		}

	case "/stop":
		transcript, err := orchestrator.StopRecording()
		if err != nil {
			fmt.Println("stop failed:", err)
		}
		if transcript != "" {
			fmt.Printf("\nyou said: %s\n", transcript)
			orchestrator.Submit(transcript)
		}

	case "/persona":
		if len(args) == 0 {
			for _, persona := range personas.All() {
				fmt.Printf("  %s — %s\n", persona.ID, persona.Name)
			}
			break
		}
		if err := orchestrator.SwitchPersona(args[0]); err != nil {
			fmt.Println("switch failed:", err)
		}

	case "/sessions":
		for _, session := range orchestrator.RecentSessions() {
			fmt.Printf("  %s  %s (%d messages)\n", session.ID, session.Title, len(session.Messages))
		}

	case "/switch":
		if len(args) == 0 {
			fmt.Println("usage: /switch <id>")
			break
		}
		if err := orchestrator.SwitchSession(args[0]); err != nil {
			fmt.Println("switch failed:", err)
		} else {
			printGreeting(orchestrator)
		}

	case "/new":
		orchestrator.StartNewSession()
		printGreeting(orchestrator)

	case "/delete":
		if len(args) == 0 {
			fmt.Println("usage: /delete <id>")
			break
		}
		if err := orchestrator.DeleteSession(args[0]); err != nil {
			fmt.Println("delete failed:", err)
		}

	case "/delmsg":
		if len(args) == 0 {
			fmt.Println("usage: /delmsg <id>")
			break
		}
		orchestrator.DeleteMessage(args[0])

	case "/react":
		if len(args) < 2 {
			fmt.Println("usage: /react <message-id> <reaction>")
			break
		}
		orchestrator.ToggleReaction(args[0], args[1])

	case "/export":
		if len(args) == 0 {
			fmt.Println("usage: /export <file>")
			break
		}
		data, err := orchestrator.ExportSession()
		if err != nil {
			fmt.Println("export failed:", err)
			break
		}
		if err := os.WriteFile(args[0], data, 0o644); err != nil {
			fmt.Println("write failed:", err)
		}

	case "/import":
		if len(args) == 0 {
			fmt.Println("usage: /import <file>")
			break
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Println("read failed:", err)
			break
		}
		if err := orchestrator.ImportSession(data); err != nil {
			fmt.Println("import failed:", err)
		} else {
			printGreeting(orchestrator)
		}

	case "/backup":
		if len(args) == 0 {
			fmt.Println("usage: /backup <file>")
			break
		}
		data, err := orchestrator.ExportAll()
		if err != nil {
			fmt.Println("backup failed:", err)
			break
		}
		if err := os.WriteFile(args[0], data, 0o644); err != nil {
			fmt.Println("write failed:", err)
		}

	case "/clear":
		if err := orchestrator.ClearAllData(); err != nil {
			fmt.Println("clear failed:", err)
		} else {
			printGreeting(orchestrator)
		}

	case "/dismiss":
		orchestrator.DismissError()

	case "/quit", "/exit":
		return true

	default:
		fmt.Println("unknown command, try /help")
	}
	return false
}
