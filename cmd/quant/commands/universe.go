package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis/v13/timeline/internal/contracts"
	"github.com/wonny/aegis/v13/timeline/internal/universe"
)

// universeCmd represents the universe command
var universeCmd = &cobra.Command{
	Use:   "universe",
	Short: "유니버스 정의 관리",
	Long: `유니버스와 현재 구성 종목을 관리합니다.
스냅샷은 이 현재 구성을 기준으로 생성됩니다.

--weight SYMBOL=WEIGHT        이름은 심볼로 채움
--asset  SYMBOL=WEIGHT,NAME[,SECTOR]

Example:
  go run ./cmd/quant universe create --owner me --name "KR Large Cap" --weight 005930=0.6 --weight 000660=0.4
  go run ./cmd/quant universe set-assets <id> --asset "005930=0.5,Samsung Electronics,IT" --weight 035420=0.5
  go run ./cmd/quant universe show <id>`,
}

var (
	universeCreateCmd = &cobra.Command{
		Use:   "create",
		Short: "유니버스 생성",
		RunE:  runUniverseCreate,
	}

	universeSetAssetsCmd = &cobra.Command{
		Use:   "set-assets [universe_id]",
		Short: "현재 구성 종목 교체",
		Args:  cobra.ExactArgs(1),
		RunE:  runUniverseSetAssets,
	}

	universeShowCmd = &cobra.Command{
		Use:   "show [universe_id]",
		Short: "유니버스 조회",
		Args:  cobra.ExactArgs(1),
		RunE:  runUniverseShow,
	}

	universeDeleteCmd = &cobra.Command{
		Use:   "delete [universe_id]",
		Short: "유니버스 삭제",
		Args:  cobra.ExactArgs(1),
		RunE:  runUniverseDelete,
	}
)

var (
	uniOwner   string
	uniName    string
	uniWeights []string
	uniAssets  []string
)

func init() {
	rootCmd.AddCommand(universeCmd)
	universeCmd.AddCommand(universeCreateCmd)
	universeCmd.AddCommand(universeSetAssetsCmd)
	universeCmd.AddCommand(universeShowCmd)
	universeCmd.AddCommand(universeDeleteCmd)

	for _, c := range []*cobra.Command{universeCreateCmd, universeSetAssetsCmd} {
		c.Flags().StringArrayVar(&uniWeights, "weight", nil, "SYMBOL=WEIGHT")
		c.Flags().StringArrayVar(&uniAssets, "asset", nil, "SYMBOL=WEIGHT,NAME[,SECTOR]")
	}
	universeCreateCmd.Flags().StringVar(&uniOwner, "owner", "", "소유자 ID")
	universeCreateCmd.Flags().StringVar(&uniName, "name", "", "유니버스 이름")
	_ = universeCreateCmd.MarkFlagRequired("owner")
	_ = universeCreateCmd.MarkFlagRequired("name")
}

// parseComposition builds a composition from --weight and --asset values
func parseComposition(weights, assets []string) (contracts.Composition, error) {
	byWeight := make(map[string]float64, len(weights))
	for _, p := range weights {
		sym, w, err := splitSymbolWeight("weight", p)
		if err != nil {
			return nil, err
		}
		if _, dup := byWeight[sym]; dup {
			return nil, contracts.Invalid("weight", "duplicate symbol %s", sym)
		}
		byWeight[sym] = w
	}
	out := contracts.CompositionFromWeights(byWeight)

	for _, p := range assets {
		head, rest, _ := strings.Cut(p, ",")
		sym, w, err := splitSymbolWeight("asset", head)
		if err != nil {
			return nil, err
		}
		name, sector, _ := strings.Cut(rest, ",")
		a, err := contracts.NewAsset(sym, name, w, sector)
		if err != nil {
			return nil, fmt.Errorf("--asset %q: %w", p, err)
		}
		out = append(out, a)
	}

	if len(out) == 0 {
		return nil, contracts.Invalid("assets", "at least one --weight or --asset is required")
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

func splitSymbolWeight(flag, p string) (string, float64, error) {
	sym, raw, ok := strings.Cut(p, "=")
	sym = strings.TrimSpace(sym)
	if !ok || sym == "" {
		return "", 0, contracts.Invalid(flag, "%q: expected SYMBOL=WEIGHT", p)
	}
	w, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return "", 0, contracts.Invalid(flag, "%q: weight is not a number", p)
	}
	return sym, w, nil
}

func runUniverseCreate(cmd *cobra.Command, args []string) error {
	assets, err := parseComposition(uniWeights, uniAssets)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	u := &universe.Universe{OwnerID: uniOwner, Name: uniName, Assets: assets}
	if err := a.universes.Create(cmd.Context(), u); err != nil {
		return err
	}

	PrintSuccess("Universe created")
	PrintKeyValue("ID", u.ID, 8)
	PrintKeyValue("Assets", fmt.Sprintf("%d", len(u.Assets)), 8)
	return nil
}

func runUniverseSetAssets(cmd *cobra.Command, args []string) error {
	assets, err := parseComposition(uniWeights, uniAssets)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.universes.ReplaceAssets(cmd.Context(), args[0], assets); err != nil {
		return err
	}
	PrintSuccess(fmt.Sprintf("Universe %s now holds %d assets", args[0], len(assets)))
	return nil
}

func runUniverseShow(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	u, err := a.universes.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	PrintHeader("Universe " + u.Name)
	PrintKeyValue("ID", u.ID, 10)
	PrintKeyValue("Owner", u.OwnerID, 10)
	PrintKeyValue("Assets", fmt.Sprintf("%d (Σw=%.4f)", len(u.Assets), u.Assets.TotalWeight()), 10)
	PrintKeyValue("Updated", u.UpdatedAt.Format("2006-01-02 15:04"), 10)
	PrintSeparator()
	printAssets(u.Assets)
	return nil
}

func runUniverseDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.universes.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	PrintSuccess("Universe deleted")
	return nil
}
