// Package pr — тонкая обёртка для вывода и ввода в интерактивном терминале.
// Инициализирует readline с отменяемым stdin, переназначает stdout/stderr на его буферы
// и даёт функции чтения строки/секрета, которыми config запрашивает недостающие значения.
// Мьютекс защищает только смену writer'ов; сами записи сериализует целевой writer.
package pr

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/kr/pretty"
	"golang.org/x/term"
)

var (
	// rl — активный инстанс readline. Nil до Init().
	rl *readline.Instance
	// out — поток стандартного вывода: os.Stdout до Init(), rl.Stdout() после.
	out io.Writer = os.Stdout
	// errOut — поток ошибок: os.Stderr до Init(), rl.Stderr() после.
	errOut io.Writer = os.Stderr
	// mu защищает замену ссылок на writer'ы и cancelableIn.
	mu sync.Mutex

	// cancelableIn закрывается при shutdown, чтобы Readline() вернул io.EOF.
	cancelableIn interface{ Close() error }
)

// ErrNotInteractive возвращается функциями ввода, когда stdin не терминал или readline не поднят.
var ErrNotInteractive = errors.New("pr: stdin is not an interactive terminal")

// Init настраивает readline и перенаправляет потоки вывода на его stdout/stderr.
// Если stdin не терминал, readline не поднимается и вывод остаётся на os.Stdout/os.Stderr.
func Init() error {
	if !IsInteractive() {
		return nil
	}
	cs := readline.NewCancelableStdin(os.Stdin)
	newRl, err := readline.NewEx(&readline.Config{Stdin: cs})
	if err != nil {
		_ = cs.Close()
		return err
	}

	mu.Lock()
	rl = newRl
	cancelableIn = cs
	out = rl.Stdout()
	errOut = rl.Stderr()
	mu.Unlock()

	return nil
}

// IsInteractive сообщает, подключён ли stdin к терминалу.
func IsInteractive() bool {
	return term.IsTerminal(syscall.Stdin)
}

// InterruptReadline закрывает cancelable stdin: ожидающий Readline() получает io.EOF.
func InterruptReadline() {
	mu.Lock()
	in := cancelableIn
	cancelableIn = nil
	mu.Unlock()
	if in != nil {
		_ = in.Close()
	}
}

// ReadLine выводит приглашение и читает строку без пробелов по краям.
func ReadLine(prompt string) (string, error) {
	mu.Lock()
	inst := rl
	mu.Unlock()
	if inst == nil {
		return "", ErrNotInteractive
	}
	inst.SetPrompt(prompt)
	line, err := inst.Readline()
	return strings.TrimSpace(line), err
}

// ReadSecret читает строку без эха (токены, пароли).
func ReadSecret(prompt string) (string, error) {
	if !IsInteractive() {
		return "", ErrNotInteractive
	}
	Print(prompt)
	secret, err := term.ReadPassword(syscall.Stdin)
	// Возвращаем курсор на новую строку после скрытого ввода.
	Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(secret)), nil
}

// Stdout возвращает текущий writer стандартного вывода.
func Stdout() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return out
}

// Stderr возвращает текущий writer ошибок.
func Stderr() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return errOut
}

// Close прерывает ожидающий ввод и освобождает readline. Повторный вызов безопасен.
func Close() {
	InterruptReadline()

	mu.Lock()
	inst := rl
	rl = nil
	out = os.Stdout
	errOut = os.Stderr
	mu.Unlock()
	if inst != nil {
		_ = inst.Close()
	}
}

// Print печатает значения в Stdout без перевода строки.
func Print(a ...any) {
	fmt.Fprint(Stdout(), a...)
}

// Println печатает значения в Stdout с переводом строки.
func Println(a ...any) {
	fmt.Fprintln(Stdout(), a...)
}

// Printf форматирует строку и печатает её в Stdout.
func Printf(format string, a ...any) {
	fmt.Fprintf(Stdout(), format, a...)
}

// Pf возвращает pretty-строку значения. Используется для диагностических дампов событий.
func Pf(v any) string {
	return fmt.Sprintf("%# v", pretty.Formatter(v))
}
