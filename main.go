// Wfbuddy is a command line client for the mobile API of Warframe.
//
// It collects finished extractors, redeploys extractors to the configured planets
// and can start and claim foundry recipes.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gohugoio/httpcache"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/cephalon-sofis/wfbuddy/internal/account"
	"github.com/cephalon-sofis/wfbuddy/internal/clock"
	"github.com/cephalon-sofis/wfbuddy/internal/lifecycle"
	"github.com/cephalon-sofis/wfbuddy/internal/pcache"
	"github.com/cephalon-sofis/wfbuddy/internal/refdata"
	"github.com/cephalon-sofis/wfbuddy/internal/session"
	"github.com/cephalon-sofis/wfbuddy/internal/singleinstance"
	"github.com/cephalon-sofis/wfbuddy/internal/storage"
	"github.com/cephalon-sofis/wfbuddy/internal/transport"
)

const (
	httpCacheKeyPrefix = "httpcache-"
	lockTimeout        = 5 * time.Second
)

// defined flags
var (
	levelFlag       logLevelFlag
	accountFlag     accountInfoFlag
	configFlag      = flag.String("config", "config.yaml", "Path to the config file")
	logFileFlag     = flag.Bool("logfile", false, "Write logs to a file instead of the console")
	refreshFlag     = flag.Bool("refresh", false, "Download the reference data again")
	showDirsFlag    = flag.Bool("show-dirs", false, "Show directories where user data is stored")
	uninstallFlag   = flag.Bool("uninstall", false, "Uninstalls the app by deleting all user files")
	startRecipeFlag = flag.String("start-recipe", "", "Start the recipe with this item type")
	claimRecipeFlag = flag.String("claim-recipe", "", "Claim the recipe with this item type")
	rushFlag        = flag.Bool("rush", false, "Rush the claimed recipe when it is not yet finished")
)

func init() {
	levelFlag.value = slog.LevelInfo
	flag.Var(&levelFlag, "loglevel", "set log level")
	flag.Var(&accountFlag, "show", "Show account data instead of running the extractors: "+strings.Join(accountInfoNames, ", "))
}

func main() {
	flag.Parse()
	slog.SetLogLoggerLevel(levelFlag.value)
	ad := newAppDirs()
	if *showDirsFlag {
		fmt.Printf("Cache: %s\n", ad.cache)
		fmt.Printf("Data: %s\n", ad.data)
		fmt.Printf("Logs: %s\n", ad.log)
		return
	}
	if *uninstallFlag {
		fmt.Print("Are you sure you want to uninstall this app and delete all user files (y/N)?")
		var input string
		fmt.Scanln(&input)
		if strings.ToLower(input) == "y" {
			if err := ad.deleteAll(); err != nil {
				log.Fatal(err)
			}
			fmt.Println("App uninstalled")
		} else {
			fmt.Println("Aborted")
		}
		return
	}
	if *logFileFlag {
		fn, err := ad.initLogFile()
		if err != nil {
			log.Fatal(err)
		}
		log.SetOutput(&lumberjack.Logger{
			Filename:   fn,
			MaxSize:    50, // megabytes
			MaxBackups: 3,
		})
	}
	cfg, err := loadConfig(*configFlag)
	if err != nil {
		log.Fatal(err)
	}
	interval, err := cfg.requestInterval()
	if err != nil {
		log.Fatal(err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dsn, err := ad.initDSN()
	if err != nil {
		log.Fatal(err)
	}
	db, err := storage.InitDB(dsn)
	if err != nil {
		log.Fatalf("Failed to initialize database %s: %s", dsn, err)
	}
	defer db.Close()
	pc := pcache.New(storage.New(db))
	pc.CleanUp()

	// Export files are static and can be downloaded again safely.
	rhcManifest := retryablehttp.NewClient()
	rhcManifest.Logger = slog.Default()
	rhcManifest.ResponseLogHook = logResponse
	rhcManifest.RetryMax = 3
	ht := &httpcache.Transport{
		Cache:     newCacheAdapter(pc, httpCacheKeyPrefix, 0),
		Transport: rhcManifest.StandardClient().Transport,
	}
	manifest := refdata.NewManifest(pc, &http.Client{Transport: ht}, cfg.API.ManifestURL)
	if *refreshFlag {
		for _, et := range []refdata.EntityType{refdata.Regions, refdata.Drones} {
			if err := manifest.Refresh(ctx, et); err != nil {
				log.Fatal(err)
			}
		}
	}
	planets, err := resolvePlanets(ctx, manifest, cfg.Extractor.Planets)
	if err != nil {
		log.Fatal(err)
	}

	lock, err := singleinstance.Acquire(cfg.Login.Email, lockTimeout)
	if err != nil {
		log.Fatal(err)
	}

	// API requests change game state and must never be repeated automatically.
	rhc := retryablehttp.NewClient()
	rhc.RetryMax = 0
	rhc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	// The request logger would expose the session nonce in URLs.
	rhc.Logger = nil
	rhc.ResponseLogHook = logResponse
	tp := transport.New(rhc.StandardClient())
	if interval > 0 {
		tp.Limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	sess := session.New(tp, cfg.API.BaseURL, cfg.Login.Email, cfg.Login.Password)
	sess.AppVersion = cfg.API.AppVersion
	sess.CodeProvider = session.CodeProviderFunc(promptCode)

	var fn func(ctx context.Context) error
	if accountFlag.value != "" {
		fn = func(ctx context.Context) error {
			return showAccountInfo(ctx, account.New(sess), accountFlag.value)
		}
	} else {
		lm := lifecycle.New(sess, manifest)
		r := &routine{
			clock:       clock.Real{},
			lm:          lm,
			out:         os.Stdout,
			ref:         manifest,
			minHealth:   cfg.Extractor.MinHealth,
			planets:     planets,
			startRecipe: *startRecipeFlag,
			claimRecipe: *claimRecipeFlag,
			rush:        *rushFlag,
		}
		fn = r.run
	}
	err = sess.WithSession(ctx, fn)
	lock.Release()
	if err != nil {
		log.Fatal(err)
	}
}

// promptCode asks the user for the verification code on the console.
func promptCode(ctx context.Context, prompt string) (string, error) {
	fmt.Println(prompt)
	fmt.Print("Please enter the code from the verification email: ")
	var code string
	if _, err := fmt.Scanln(&code); err != nil {
		return "", err
	}
	return code, nil
}

func showAccountInfo(ctx context.Context, s *account.Service, name string) error {
	var r transport.Result
	var err error
	switch name {
	case "inbox":
		r, err = s.Inbox(ctx)
	case "friends":
		r, err = s.Friends(ctx)
	case "guild":
		r, err = s.Guild(ctx)
	case "guildlog":
		r, err = s.GuildLog(ctx)
	default:
		return fmt.Errorf("unknown account data: %s", name)
	}
	if err != nil {
		return err
	}
	if !r.IsJSON() {
		fmt.Println(r.Text())
		return nil
	}
	dat, err := json.MarshalIndent(r.Value(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(dat))
	return nil
}
