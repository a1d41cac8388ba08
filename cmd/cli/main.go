// Утилита оплаты с консоли: полный цикл киоска без интерфейса.
// Проводит оплату через платёжный фасад и печатает события хода
// оплаты; реквизиты успешной транзакции выводятся как JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"tlterm/internal/infrastructure/config"
	"tlterm/internal/infrastructure/logger"
	"tlterm/internal/payment"
)

func main() {
	var (
		configPath = flag.String("config", "", "путь к YAML-конфигурации (пусто - значения по умолчанию)")
		amount     = flag.Int64("amount", 0, "сумма оплаты в минимальных единицах валюты")
		simulate   = flag.Bool("simulate", false, "использовать симулятор вместо терминала")
		port       = flag.String("port", "", "последовательный порт терминала (перекрывает конфигурацию)")
		cancelNo   = flag.String("cancel", "", "номер одобрения для отмены вместо оплаты")
		cancelDate = flag.String("cancel-date", "", "дата исходной продажи YYYYMMDD (для -cancel)")
		cancelTime = flag.String("cancel-time", "", "время исходной продажи hhmmss (для -cancel)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *simulate {
		cfg.Payment.UseSimulator = true
	}
	if *port != "" {
		cfg.Serial.Port = *port
	}

	appLog, err := logger.Init(&cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}

	svc := payment.New(cfg, appLog)

	fmt.Printf("Подключение к терминалу %s...\n", cfg.Terminal.ID)
	if err := svc.Connect(); err != nil {
		log.Fatalf("Fatal: %v", err)
	}
	defer svc.Disconnect()
	printJSON("Status", svc.Status())

	// События хода оплаты печатаются по мере поступления
	go func() {
		for e := range svc.Events() {
			switch {
			case e.CardType != "":
				fmt.Printf("  событие: %s (%s)\n", e.Kind, e.CardType)
			case e.Message != "":
				fmt.Printf("  событие: %s: %s\n", e.Kind, e.Message)
			default:
				fmt.Printf("  событие: %s\n", e.Kind)
			}
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *cancelNo != "" {
		result, err := svc.CancelTransaction(payment.CancelDetails{
			ApprovalNumber: *cancelNo,
			SalesDate:      *cancelDate,
			SalesTime:      *cancelTime,
			Amount:         *amount,
		})
		if err != nil {
			log.Fatalf("Отмена не выполнена: %v", err)
		}
		printJSON("Отмена выполнена", result)
		return
	}

	if *amount <= 0 {
		fmt.Println("Укажите -amount для оплаты или -cancel для отмены")
		flag.Usage()
		os.Exit(2)
	}

	fmt.Printf("Оплата %d, предъявите карту...\n", *amount)
	result, err := svc.ProcessPayment(ctx, *amount)
	if err != nil {
		log.Fatalf("Оплата не выполнена: %v", err)
	}
	printJSON("Оплата одобрена", result)
}

func printJSON(name string, data interface{}) {
	fmt.Printf("\n--- [%s] ---\n", name)
	b, _ := json.MarshalIndent(data, "", "  ")
	fmt.Println(string(b))
}
