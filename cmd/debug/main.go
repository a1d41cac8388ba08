// Отладочная утилита протокольного уровня: опрос терминала напрямую,
// без платёжного фасада. Перечисляет порты, проверяет модули, версию,
// справку по карте; с флагом -dump печатает проводной вид запроса.
package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	"tlterm/pkg/tl3600"
)

func main() {
	var (
		list       = flag.Bool("list", false, "перечислить последовательные порты и выйти")
		port       = flag.String("port", "/dev/ttyUSB0", "последовательный порт терминала")
		terminalID = flag.String("terminal", "KIOSK001", "идентификатор терминала, до 16 символов")
		dump       = flag.Bool("dump", false, "построить кадр проверки устройства, напечатать и выйти")
		inquire    = flag.Bool("inquire", false, "запросить справку по карте (терминал ждёт предъявления)")
		standby    = flag.Duration("standby", 0, "войти в режим ожидания карты на указанное время")
	)
	flag.Parse()

	if *list {
		ports, err := tl3600.ListPorts()
		if err != nil {
			log.Fatalf("Fatal: %v", err)
		}
		if len(ports) == 0 {
			fmt.Println("Последовательные порты не найдены")
			return
		}
		for _, p := range ports {
			if p.Manufacturer != "" {
				fmt.Printf("%s\t%s\n", p.Path, p.Manufacturer)
			} else {
				fmt.Println(p.Path)
			}
		}
		return
	}

	if *dump {
		pkt := tl3600.NewRequest(*terminalID, tl3600.JobDeviceCheck, nil)
		frame, err := pkt.Encode()
		if err != nil {
			log.Fatalf("Fatal: %v", err)
		}
		fmt.Println(hex.Dump(frame))

		parsed, err := tl3600.ParsePacket(frame)
		if err != nil {
			log.Fatalf("Fatal: обратный разбор: %v", err)
		}
		fmt.Printf("terminal=%q job=%q data=%d bytes\n", parsed.TerminalID, byte(parsed.JobCode), len(parsed.Data))
		return
	}

	tr := tl3600.NewSerialTransport(tl3600.SerialConfig{
		PortName: *port,
		Logger:   func(msg string) { log.Printf("[tl3600] %s", msg) },
	})
	ctrl := tl3600.NewController(tl3600.Config{
		TerminalID: *terminalID,
		Logger:     func(msg string) { log.Printf("[tl3600] %s", msg) },
	}, tr)

	fmt.Printf("Подключение к %s...\n", *port)
	if err := ctrl.Connect(); err != nil {
		log.Fatalf("Fatal: %v", err)
	}
	defer ctrl.Disconnect()
	fmt.Println("Подключено. Опрос терминала...")

	check, err := ctrl.CheckDevice()
	if err != nil {
		printSection("CheckDevice", nil, err)
	} else {
		fmt.Printf("\n--- [CheckDevice] ---\nКарт-модуль: %s, RF-модуль: %s, VAN-сервер: %s\n",
			check.CardModule, check.RFModule, check.VANServer)
	}

	version, err := ctrl.CheckVersion()
	printSection("CheckVersion", version, err)

	printSection("Status", ctrl.Status(), nil)

	if *inquire {
		fmt.Println("\nПредъявите карту для справки...")
		info, err := ctrl.InquireCard()
		printSection("InquireCard", info, err)
	}

	if *standby > 0 {
		fmt.Printf("\nРежим ожидания карты на %v, предъявите карту...\n", *standby)
		if err := ctrl.EnterPaymentMode(tl3600.DefaultApprovalRequest(100)); err != nil {
			log.Fatalf("Fatal: %v", err)
		}
		deadline := time.After(*standby)
	loop:
		for {
			select {
			case n := <-ctrl.Events():
				fmt.Printf("  уведомление: %s\n", n.Kind)
				if n.Result != nil {
					printSection("Результат", n.Result, nil)
				}
				if n.Kind == tl3600.NotePaymentApproved || n.Kind == tl3600.NotePaymentRejected {
					break loop
				}
			case <-deadline:
				fmt.Println("  время вышло")
				if err := ctrl.ExitPaymentMode(); err != nil {
					log.Printf("выход из режима ожидания: %v", err)
				}
				break loop
			}
		}
	}
}

// Вспомогательная функция для вывода
func printSection(name string, data interface{}, err error) {
	fmt.Printf("\n--- [%s] ---\n", name)
	if err != nil {
		fmt.Printf("ОШИБКА: %v\n", err)
		return
	}
	switch v := data.(type) {
	case string, int, bool:
		fmt.Printf("Результат: %v\n", v)
	default:
		b, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(b))
	}
}
