// Package pongball 提供 PongBall 多人房間中繼伺服器。
//
// 讓恰好兩個遠端客戶端在共享房間碼下彼此發現，交換有界的即時遊戲
// 訊息（位置、球狀態、分數），並優雅處理斷線、超時與房間生命週期。
//
// 房間管理
//
// 完整的房間生命週期：
//   - 憑碼加入時按需創建，清空後刪除
//   - 每房間最多兩名玩家，滿房加入失敗且不改變狀態
//   - 同一玩家識別碼重新加入視為重連，先移除舊條目
//   - 清理器定期回收過期空房間與超時玩家
//
// # WebSocket 通訊
//
// 即時雙向通訊機制：
//   - JSON 事件信封，固定欄位的事件變體，形狀驗證失敗即忽略
//   - 廣播排除發送者，交付盡力而為，死連接不拖累其他接收者
//   - Ping/Pong 心跳檢測死連接（54s/60s）
//   - 應用層 ping 原樣回送時間戳，供客戶端量測延遲
//
// 併發設計
//
//   - 每房間一把讀寫鎖，房間彼此獨立
//   - 同一連接的事件按到達順序處理
//   - 出站發送經緩衝 channel 非阻塞交付
//   - 任何單一畸形或過期事件最壞只是被丟棄，絕不讓行程崩潰
//
// 使用範例
//
// 啟動服務器：
//
//	hub := internal.NewHub(logger)
//	registry := internal.NewRegistry(cfg.DefaultRoomSettings(), hub, logger)
//	sessions := internal.NewSessionRegistry()
//	relay := internal.NewRelay(registry, sessions, hub, sink, cfg.Game.MaxScore, logger)
//	hub.Attach(relay)
//
//	http.Handle("/", handler.Routes())
//	http.HandleFunc("/ws", hub.ServeWS)
//	log.Fatal(http.ListenAndServe(":3000", nil))
//
// 架構設計
//
// 系統採用分層架構設計：
//   - Hub 層：WebSocket 連接管理與出站交付
//   - Relay 層：事件路由與廣播語義
//   - Registry 層：房間與會話的權威映射
//   - Room 層：玩家集合與權威遊戲快照
//
// 配置選項
//
//   - -config：YAML 配置檔路徑
//   - -port：服務監聽端口（預設 3000）
//   - -log-level：日誌級別（debug/info/warn/error）
//   - -log-format：日誌格式（text/json）
//
// 統計落地
//
// 對局結束時的結算統計以 fire-and-forget 方式送往統計落地點；
// 啟用 Redis 時推入列表，否則丟棄。寫入失敗只記日誌，不影響房間。
package pongball
